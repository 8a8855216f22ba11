package linker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRootFolderName = "root"
	sourceIDHashPrefix    = "sha256:"
)

// Policy names the JMESPath expressions evaluated against each record's
// fields. Correlation and SourceID are tried in order; the first expression
// that yields a non-empty scalar wins.
type Policy struct {
	Correlation    []string
	FolderPath     string
	SourceID       []string
	Status         string
	RootFolderName string
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(core.DefaultConfig().Linker)
}

func PolicyFromConfig(cfg core.LinkerConfig) Policy {
	return Policy{
		Correlation:    append([]string(nil), cfg.Correlation...),
		FolderPath:     cfg.FolderPath,
		SourceID:       append([]string(nil), cfg.SourceID...),
		Status:         cfg.Status,
		RootFolderName: cfg.RootFolderName,
	}
}

type searcher interface {
	Search(data any) (any, error)
}

type expression struct {
	source   string
	compiled searcher
}

func (e expression) search(fields map[string]any) (any, error) {
	value, err := e.compiled.Search(fields)
	if err != nil {
		return nil, fmt.Errorf("linker: evaluate %q: %w", e.source, err)
	}
	return value, nil
}

// Linker resolves parsed records to a job and a folder. It is safe for
// concurrent use.
type Linker struct {
	correlation []expression
	folderPath  *expression
	sourceID    []expression
	status      *expression
	rootName    string
	folders     singleflight.Group
}

var _ core.RecordLinker = (*Linker)(nil)

func New(policy Policy) (*Linker, error) {
	correlation, err := compileAll("correlation", policy.Correlation)
	if err != nil {
		return nil, err
	}
	if len(correlation) == 0 {
		return nil, core.NewBadInputError("linker: at least one correlation expression is required")
	}
	sourceID, err := compileAll("source_id", policy.SourceID)
	if err != nil {
		return nil, err
	}
	folderPath, err := compileOptional("folder_path", policy.FolderPath)
	if err != nil {
		return nil, err
	}
	status, err := compileOptional("status", policy.Status)
	if err != nil {
		return nil, err
	}
	rootName := sanitizeSegment(policy.RootFolderName)
	if rootName == "" {
		rootName = DefaultRootFolderName
	}
	return &Linker{
		correlation: correlation,
		folderPath:  folderPath,
		sourceID:    sourceID,
		status:      status,
		rootName:    rootName,
	}, nil
}

func compileAll(name string, sources []string) ([]expression, error) {
	out := make([]expression, 0, len(sources))
	for _, source := range sources {
		expr, err := compileOptional(name, source)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			out = append(out, *expr)
		}
	}
	return out, nil
}

func compileOptional(name, source string) (*expression, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	compiled, err := jmespath.Compile(source)
	if err != nil {
		return nil, core.NewBadInputError(fmt.Sprintf("linker: invalid %s expression %q: %v", name, source, err))
	}
	return &expression{source: source, compiled: compiled}, nil
}

// Link resolves the record's job, walks the folder path creating any missing
// folders, and derives the source record identifier. Records that cannot be
// tied to a job fail with a link resolution error; store failures are
// returned unchanged.
func (l *Linker) Link(ctx context.Context, store core.LinkStore, record core.ParsedRecord, opts core.LinkOptions) (core.Link, error) {
	if l == nil {
		return core.Link{}, fmt.Errorf("linker: linker is nil")
	}
	if store == nil {
		return core.Link{}, fmt.Errorf("linker: store is required")
	}
	fields := record.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	correlationID := strings.TrimSpace(opts.JobID)
	if correlationID == "" {
		var err error
		correlationID, err = firstScalar(l.correlation, fields)
		if err != nil {
			return core.Link{}, core.NewLinkResolutionError(err.Error(), "")
		}
	}
	if correlationID == "" {
		return core.Link{}, core.NewLinkResolutionError("record has no correlation id", "")
	}

	job, err := store.FindJob(ctx, correlationID)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			return core.Link{}, core.NewLinkResolutionError("no job matches correlation id", correlationID)
		}
		return core.Link{}, err
	}

	segments, err := l.folderSegments(fields)
	if err != nil {
		return core.Link{}, core.NewLinkResolutionError(err.Error(), correlationID)
	}
	folder, err := l.resolveFolders(ctx, store, job.ID, segments)
	if err != nil {
		return core.Link{}, err
	}

	sourceID, err := firstScalar(l.sourceID, fields)
	if err != nil {
		return core.Link{}, core.NewLinkResolutionError(err.Error(), correlationID)
	}
	if sourceID == "" {
		sourceID, err = contentHash(record)
		if err != nil {
			return core.Link{}, err
		}
	}

	status := ""
	if l.status != nil {
		value, err := l.status.search(fields)
		if err == nil {
			status, _ = scalarString(value)
		}
	}

	return core.Link{
		Job:            job,
		Folder:         folder,
		CorrelationID:  correlationID,
		SourceRecordID: sourceID,
		ProviderStatus: status,
	}, nil
}

func (l *Linker) resolveFolders(ctx context.Context, store core.LinkStore, jobID string, segments []string) (core.Folder, error) {
	current, err := l.folder(ctx, store, core.FolderKey{
		JobID: jobID,
		Name:  l.rootName,
		Path:  "/" + l.rootName,
		Depth: 0,
	})
	if err != nil {
		return core.Folder{}, err
	}
	for _, segment := range segments {
		current, err = l.folder(ctx, store, core.FolderKey{
			JobID:    jobID,
			ParentID: current.ID,
			Name:     segment,
			Path:     current.Path + "/" + segment,
			Depth:    current.Depth + 1,
		})
		if err != nil {
			return core.Folder{}, err
		}
	}
	return current, nil
}

// folder coalesces identical requests made against the same store. Requests
// from different stores are never merged: a folder created inside one open
// transaction is not visible to another until it commits, so the database
// unique index settles races between transactions.
func (l *Linker) folder(ctx context.Context, store core.LinkStore, key core.FolderKey) (core.Folder, error) {
	flightKey := fmt.Sprintf("%p\x00%s\x00%s\x00%s", store, key.JobID, key.ParentID, key.Name)
	value, err, _ := l.folders.Do(flightKey, func() (any, error) {
		return store.GetOrCreateFolder(ctx, key)
	})
	if err != nil {
		return core.Folder{}, err
	}
	folder, ok := value.(core.Folder)
	if !ok {
		return core.Folder{}, fmt.Errorf("linker: unexpected folder result %T", value)
	}
	return folder, nil
}

func (l *Linker) folderSegments(fields map[string]any) ([]string, error) {
	if l.folderPath == nil {
		return nil, nil
	}
	value, err := l.folderPath.search(fields)
	if err != nil {
		return nil, err
	}
	var raw []any
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case []any:
		raw = typed
	case string:
		for _, part := range strings.Split(typed, "/") {
			raw = append(raw, part)
		}
	default:
		raw = []any{typed}
	}
	segments := make([]string, 0, len(raw))
	for _, item := range raw {
		text, ok := scalarString(item)
		if !ok {
			continue
		}
		if segment := sanitizeSegment(text); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments, nil
}

func firstScalar(exprs []expression, fields map[string]any) (string, error) {
	var firstErr error
	for _, expr := range exprs {
		value, err := expr.search(fields)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if text, ok := scalarString(value); ok {
			if text = strings.TrimSpace(text); text != "" {
				return text, nil
			}
		}
	}
	return "", firstErr
}

// scalarString renders strings, numbers, and booleans. Whole floats print
// without a fraction so 42 and 42.0 map to the same identifier.
func scalarString(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case float64:
		if typed == math.Trunc(typed) && math.Abs(typed) < 1e15 {
			return strconv.FormatInt(int64(typed), 10), true
		}
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case json.Number:
		return typed.String(), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

func sanitizeSegment(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "/", "_")
	return value
}

// contentHash identifies a record with no natural id by its canonical JSON.
// Map keys marshal in sorted order, so equal fields hash equally.
func contentHash(record core.ParsedRecord) (string, error) {
	var body []byte
	if record.Fields != nil {
		encoded, err := json.Marshal(record.Fields)
		if err != nil {
			return "", fmt.Errorf("linker: canonicalize record %d: %w", record.Index, err)
		}
		body = encoded
	} else {
		body = record.Raw
	}
	sum := sha256.Sum256(body)
	return sourceIDHashPrefix + hex.EncodeToString(sum[:]), nil
}
