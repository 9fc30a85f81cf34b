// Package metadata resolves host identity and command definitions from a
// local metadata document.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the metadata document read when none is configured.
const DefaultPath = "/etc/deckhand/metadata.yaml"

// Elector resolves command leadership for a host.
type Elector interface {
	ElectLeader(ctx context.Context, id domain.Identity, req *domain.CommandRequest) (bool, error)
}

// Source fetches a metadata document for a stack resource, for hosts whose
// metadata lives with the stack instead of on disk.
type Source interface {
	ResourceMetadata(ctx context.Context, id domain.Identity, resource string) (string, error)
}

// Document is the metadata layout.
type Document struct {
	Identity           domain.Identity     `yaml:"identity"`
	CommandDefinitions map[string]any      `yaml:"command_definitions"`
	ConfigSets         map[string][]string `yaml:"config_sets"`
	// Leader pins the leader election outcome, skipping the elector.
	Leader *bool `yaml:"leader"`
}

// File implements ports.EnvironmentMetadata over a YAML (or JSON) document.
// It holds no per-request state; every Refresh yields its own Snapshot.
type File struct {
	path    string
	elector Elector
	source  Source
	logger  *slog.Logger
}

// Option configures the File.
type Option func(*File)

// WithElector delegates leader election.
func WithElector(e Elector) Option {
	return func(f *File) {
		f.elector = e
	}
}

// WithSource fetches the document from the stack on Refresh, using the local
// file only for the identity of the host.
func WithSource(s Source) Option {
	return func(f *File) {
		f.source = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *File) {
		f.logger = logger
	}
}

// NewFile creates a metadata resolver for the document at path.
func NewFile(path string, opts ...Option) *File {
	if path == "" {
		path = DefaultPath
	}
	f := &File{path: path, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh reads the document for one request. resource, when set, overrides
// the resource the host reports for this request only.
func (f *File) Refresh(ctx context.Context, requestID, resource string) (ports.MetadataSnapshot, error) {
	return f.Load(ctx, requestID, resource)
}

// Load is Refresh returning the concrete snapshot.
func (f *File) Load(ctx context.Context, requestID, resource string) (*Snapshot, error) {
	doc, err := f.readLocal()
	if err != nil {
		return nil, err
	}
	if resource != "" {
		doc.Identity.Resource = resource
	}

	if f.source != nil {
		raw, err := f.source.ResourceMetadata(ctx, doc.Identity, doc.Identity.Resource)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch resource metadata: %w", err)
		}
		remote, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		remote.Identity = doc.Identity
		if remote.Leader == nil {
			remote.Leader = doc.Leader
		}
		doc = remote
	}

	defs := domain.Definitions{}
	if len(doc.CommandDefinitions) > 0 {
		if defs, err = domain.DecodeDefinitions(doc.CommandDefinitions); err != nil {
			return nil, err
		}
	}

	f.logger.Debug("Refreshed environment metadata.", "request_id", requestID, "commands", len(defs))
	return &Snapshot{doc: doc, defs: defs, elector: f.elector}, nil
}

func (f *File) readLocal() (Document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && f.source != nil {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return doc, nil
}

// Snapshot is the metadata read for one request. It is immutable.
type Snapshot struct {
	doc     Document
	defs    domain.Definitions
	elector Elector
}

// Identity returns the host identity.
func (s *Snapshot) Identity() domain.Identity {
	return s.doc.Identity
}

// CommandDefinitions returns a copy of the definitions.
func (s *Snapshot) CommandDefinitions(ctx context.Context) (domain.Definitions, error) {
	return domain.Definitions{}.Merge(s.defs), nil
}

// ConfigSets returns the configuration sets applied for req: the request's
// own comma separated config_set, else the sets mapped to the command name,
// else a config set named after the command.
func (s *Snapshot) ConfigSets(ctx context.Context, req *domain.CommandRequest) ([]string, error) {
	if sets := splitSets(req.ConfigSet); len(sets) > 0 {
		return sets, nil
	}
	if sets, ok := s.doc.ConfigSets[req.CommandName]; ok && len(sets) > 0 {
		return append([]string(nil), sets...), nil
	}
	return []string{req.CommandName}, nil
}

func splitSets(raw string) []string {
	var sets []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sets = append(sets, s)
		}
	}
	return sets
}

// ElectLeader resolves leadership: a pinned outcome wins, then the elector.
// A host without either leads.
func (s *Snapshot) ElectLeader(ctx context.Context, req *domain.CommandRequest) (bool, error) {
	if s.doc.Leader != nil {
		return *s.doc.Leader, nil
	}
	if s.elector == nil {
		return true, nil
	}
	return s.elector.ElectLeader(ctx, s.doc.Identity, req)
}
