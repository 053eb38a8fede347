package signals

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cairnlabs/cairn/pkg/command"
	"github.com/cairnlabs/cairn/pkg/events"
	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/metrics"
	"github.com/cairnlabs/cairn/pkg/types"
)

// pollInterval is how often the signal directory is swept.
const pollInterval = 500 * time.Millisecond

// Submitter accepts parsed commands for execution
type Submitter interface {
	SubmitCommand(ctx context.Context, cmd *command.Command) (*types.CommandResult, error)
}

// prefixes maps file-stem prefixes to command tags for payloads that
// omit a "type" field.
var prefixes = []struct {
	prefix string
	tag    string
}{
	{"spawn-", "spawn"},
	{"queue-", "queue"},
	{"accept-", "accept"},
	{"reject-", "reject"},
}

// Poller sweeps a directory of single-shot JSON command files and
// submits each one. Files are consumed in lexicographic order and
// unlinked unconditionally, parsed or not, so nothing is processed
// twice.
type Poller struct {
	dir       string
	submitter Submitter
	broker    *events.Broker
	interval  time.Duration
	stopCh    chan struct{}
}

// NewPoller creates a poller over dir. The broker may be nil when no
// event stream is wanted.
func NewPoller(dir string, submitter Submitter, broker *events.Broker) *Poller {
	return &Poller{
		dir:       dir,
		submitter: submitter,
		broker:    broker,
		interval:  pollInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Poller) Start() {
	go p.run()
}

// Stop stops the polling loop
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Sweep(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// Sweep processes every signal file currently in the directory and
// returns how many commands were submitted. Exported so embedded use
// and tests can drive the adapter without the ticker.
func (p *Poller) Sweep(ctx context.Context) int {
	files, err := filepath.Glob(filepath.Join(p.dir, "*.json"))
	if err != nil {
		log.Logger.Warn().
			Str("component", "signals").
			Err(err).
			Msg("failed to scan signal directory")
		return 0
	}
	sort.Strings(files)

	submitted := 0
	for _, file := range files {
		if p.processFile(ctx, file) {
			submitted++
		}
	}
	return submitted
}

// processFile handles one signal file. The file is removed no matter
// what happens, so a malformed signal cannot wedge the poller.
func (p *Poller) processFile(ctx context.Context, path string) bool {
	defer os.Remove(path)

	payload := map[string]any{}
	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &payload); jsonErr != nil {
			log.Logger.Debug().
				Str("component", "signals").
				Str("file", filepath.Base(path)).
				Err(jsonErr).
				Msg("signal payload is not valid JSON, treating as empty")
			payload = map[string]any{}
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	tag, ok := resolveTag(stem, payload)
	if !ok {
		log.Logger.Debug().
			Str("component", "signals").
			Str("file", filepath.Base(path)).
			Msg("signal has no type field and no recognized prefix, skipping")
		metrics.SignalsProcessedTotal.WithLabelValues("skipped").Inc()
		return false
	}

	cmd, err := command.Parse(tag, payload)
	if err != nil {
		log.Logger.Warn().
			Str("component", "signals").
			Str("file", filepath.Base(path)).
			Err(err).
			Msg("invalid signal command, skipping")
		metrics.SignalsProcessedTotal.WithLabelValues("invalid").Inc()
		return false
	}

	result, err := p.submitter.SubmitCommand(ctx, cmd)
	if err != nil {
		log.Logger.Warn().
			Str("component", "signals").
			Str("file", filepath.Base(path)).
			Str("command", cmd.String()).
			Err(err).
			Msg("signal command failed")
		metrics.SignalsProcessedTotal.WithLabelValues("error").Inc()
		return false
	}

	metrics.SignalsProcessedTotal.WithLabelValues("ok").Inc()

	agentID := cmd.AgentID
	if agentID == "" && result != nil {
		agentID = result.AgentID
	}
	log.Logger.Info().
		Str("component", "signals").
		Str("file", filepath.Base(path)).
		Str("command", cmd.String()).
		Str("agent_id", agentID).
		Msg("signal processed")

	if p.broker != nil {
		p.broker.Publish(&events.Event{
			Type:    events.EventSignalReceived,
			AgentID: agentID,
			Message: "signal " + filepath.Base(path) + ": " + cmd.String(),
		})
	}
	return true
}

// resolveTag determines the command tag for a signal. An explicit
// "type" field wins; otherwise the file-stem prefix decides. For
// accept/reject, a missing agent_id is filled from the stem with the
// prefix stripped.
func resolveTag(stem string, payload map[string]any) (string, bool) {
	tag, _ := payload["type"].(string)
	if tag == "" {
		for _, p := range prefixes {
			if strings.HasPrefix(stem, p.prefix) {
				tag = p.tag
				break
			}
		}
	}
	if tag == "" {
		return "", false
	}

	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "accept", "reject":
		if _, has := payload["agent_id"]; !has {
			prefix := strings.ToLower(strings.TrimSpace(tag)) + "-"
			if rest := strings.TrimPrefix(stem, prefix); rest != stem && rest != "" {
				payload["agent_id"] = rest
			}
		}
	}
	return tag, true
}
