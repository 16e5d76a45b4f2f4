package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/habforecast/eo-fetcher/common"
	"github.com/habforecast/eo-fetcher/service"
	"github.com/habforecast/eo-fetcher/service/log"
	"go.uber.org/zap"
)

// Listener is notified of the outcome of every target.
// An error is logged and does not stop the batch.
type Listener interface {
	Handle(ctx context.Context, res common.Result) error
	Name() string
}

// MessagePublisher is the publishing side of a messaging queue (pubsub topic, pgqueue...)
type MessagePublisher interface {
	Publish(ctx context.Context, data ...[]byte) error
}

// EventListener publishes every result as a json message
type EventListener struct {
	publisher MessagePublisher
}

// NewEventListener creates a listener publishing on the publisher
func NewEventListener(publisher MessagePublisher) *EventListener {
	return &EventListener{publisher: publisher}
}

// Name implements Listener
func (l *EventListener) Name() string { return "events" }

// Handle implements Listener
func (l *EventListener) Handle(ctx context.Context, res common.Result) error {
	resb, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("EventListener.Marshal: %w", err)
	}
	if err := l.publisher.Publish(ctx, resb); err != nil {
		return service.MakeTemporary(fmt.Errorf("EventListener: failed to enqueue result: %w", err))
	}
	return nil
}

// ArchiveListener mirrors the transferred files into an archive (keeping their path relative to the download root)
// and/or collects the files of the batch to save them as one zip file
type ArchiveListener struct {
	archive  service.Archive
	root     string
	eachFile bool

	mu    sync.Mutex
	batch []string
}

// NewArchiveListener creates an ArchiveListener. If eachFile is false, files are only collected for SaveZip.
func NewArchiveListener(archive service.Archive, root string, eachFile bool) *ArchiveListener {
	return &ArchiveListener{archive: archive, root: root, eachFile: eachFile}
}

// Name implements Listener
func (l *ArchiveListener) Name() string { return "archive" }

// Handle implements Listener
func (l *ArchiveListener) Handle(ctx context.Context, res common.Result) error {
	if !res.Status.Transferred() && res.Status != common.StatusEXISTING {
		return nil
	}
	relPath, err := filepath.Rel(l.root, res.File)
	if err != nil {
		return fmt.Errorf("ArchiveListener.Rel: %w", err)
	}
	l.mu.Lock()
	l.batch = append(l.batch, relPath)
	l.mu.Unlock()

	if !l.eachFile || !res.Status.Transferred() {
		return nil
	}
	uri, err := l.archive.Save(ctx, res.File, relPath)
	if err != nil {
		return fmt.Errorf("ArchiveListener.%w", err)
	}
	log.Logger(ctx).Debug("archived", zap.String("uri", uri))
	return nil
}

// Files returns the files of the batch (relative to the download root)
func (l *ArchiveListener) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.batch...)
}

// SaveZip saves all the files of the batch as one zip file
func (l *ArchiveListener) SaveZip(ctx context.Context, zipName string) (string, error) {
	uri, err := service.SaveAsZip(ctx, l.archive, l.root, l.Files(), zipName)
	if err != nil {
		return "", fmt.Errorf("ArchiveListener.%w", err)
	}
	return uri, nil
}

// CommandListener runs a command on every transferred file (appended as last argument).
// Its outputs are logged.
type CommandListener struct {
	command []string
}

// NewCommandListener parses the command line (arguments separated by spaces)
func NewCommandListener(commandLine string) (*CommandListener, error) {
	command := strings.Fields(commandLine)
	if len(command) == 0 {
		return nil, fmt.Errorf("NewCommandListener: empty command")
	}
	return &CommandListener{command: command}, nil
}

// Name implements Listener
func (l *CommandListener) Name() string { return "command " + l.command[0] }

// Handle implements Listener
func (l *CommandListener) Handle(ctx context.Context, res common.Result) error {
	if !res.Status.Transferred() {
		return nil
	}
	args := append(append([]string{}, l.command[1:]...), res.File)
	cmd := exec.CommandContext(ctx, l.command[0], args...)
	if err := log.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("CommandListener[%s]: %w", l.command[0], err)
	}
	return nil
}
