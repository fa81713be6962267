package gdrive

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/gdpoller-go/internal/activity"
)

const (
	// maxHops bounds the parent walk; a cycle in parent pointers (possible
	// with shared-drive shortcuts) must not hang the enrichment stage.
	maxHops = 100

	// sharedRootIDLen: real item ids are longer; anything shorter is a
	// shared-drive root sentinel whose segment is rendered as "/<id>".
	sharedRootIDLen = 20
)

// FileGetter fetches one item's metadata. *Client satisfies it; tests use
// in-memory fakes.
type FileGetter interface {
	GetFile(ctx context.Context, itemID string) (*File, error)
}

// Resolved is a successful path resolution.
type Resolved struct {
	Path    string
	Parent  activity.Parent
	WebLink string
	Size    int64
}

// CacheConfig controls the resolver's bounded LRU of intermediate ancestor
// records. Disabled when Enable is false.
type CacheConfig struct {
	Enable  bool
	MaxSize int
	TTL     time.Duration
}

// Resolver turns an item id into its absolute logical path below a watched
// ancestor. The leaf hop is always fetched fresh: it is the node that just
// changed, so a cached record would be stale by construction. Intermediate
// ancestor hops may be served from the cache.
type Resolver struct {
	files  FileGetter
	logger *slog.Logger
	cache  *expirable.LRU[string, *File]
}

// NewResolver creates a resolver, with an expiring LRU when the cache is
// enabled.
func NewResolver(files FileGetter, cache CacheConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{files: files, logger: logger}

	if cache.Enable {
		r.cache = expirable.NewLRU[string, *File](cache.MaxSize, nil, cache.TTL)
	}

	return r
}

// Resolve walks parent pointers from itemID up to ancestorID, prepending
// NFC-normalised names. Termination, in order: the ancestor is reached (the
// rootLabel segment is pushed when set), the current node has no parents,
// or the hop bound trips. Any fetch failure fails the whole resolution;
// the caller surfaces the event with an empty path rather than a partial
// one.
func (r *Resolver) Resolve(ctx context.Context, itemID, ancestorID, rootLabel string) (*Resolved, bool) {
	if itemID == "" {
		r.logger.Error("resolve called with empty item id")

		return nil, false
	}

	leaf, err := r.getFile(ctx, itemID, true)
	if err != nil {
		return nil, false
	}

	type segment struct {
		name string
		id   string
	}

	var stack []segment

	if rootLabel != "" && itemID == ancestorID {
		stack = append(stack, segment{rootLabel, ancestorID})
	} else {
		stack = append(stack, segment{norm.NFC.String(leaf.Name), leaf.ID})

		current := leaf
		for hops := 0; len(current.Parents) > 0 && hops < maxHops; hops++ {
			parent, err := r.getFile(ctx, current.Parents[0], false)
			if err != nil {
				return nil, false
			}

			if rootLabel != "" && parent.ID == ancestorID {
				stack = append(stack, segment{rootLabel, ancestorID})
				break
			}

			stack = append(stack, segment{norm.NFC.String(parent.Name), parent.ID})
			current = parent
		}
	}

	// Shared-drive roots have short ids and no useful name; render them
	// as "/<id>" so the path stays unambiguous.
	top := &stack[len(stack)-1]
	if top.id != "" && len(top.id) < sharedRootIDLen {
		top.name = "/" + top.id
	}

	names := make([]string, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].name != "" {
			names = append(names, stack[i].name)
		}
	}

	parentSeg := stack[0]
	if len(stack) > 1 {
		parentSeg = stack[1]
	}

	return &Resolved{
		Path:    joinPath(names),
		Parent:  activity.Parent{Name: parentSeg.name, ID: parentSeg.id},
		WebLink: strings.TrimSpace(leaf.WebViewLink),
		Size:    leaf.Size,
	}, true
}

// getFile fetches one record, via the cache for non-leaf hops when caching
// is enabled.
func (r *Resolver) getFile(ctx context.Context, itemID string, leaf bool) (*File, error) {
	if r.cache != nil && !leaf {
		if cached, ok := r.cache.Get(itemID); ok {
			return cached, nil
		}
	}

	file, err := r.files.GetFile(ctx, itemID)
	if err != nil {
		r.logger.Error("file fetch failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	if r.cache != nil && !leaf {
		r.cache.Add(itemID, file)
	}

	return file, nil
}

// joinPath joins segments into an absolute POSIX-style path, collapsing the
// leading slash a "/<id>" root segment already carries.
func joinPath(names []string) string {
	joined := strings.Join(names, "/")
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}

	return joined
}
