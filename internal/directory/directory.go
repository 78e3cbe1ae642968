// ABOUTME: Cached, searchable registry of conversation summaries
// ABOUTME: Owns create/rename/delete with optimistic cache updates and rollback

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a rename or delete targets an id absent from
// the cache.
var ErrNotFound = errors.New("conversation not found")

// PlaceholderTitle is displayed for conversations that have not been named.
const PlaceholderTitle = "new conversation"

// Summary is one entry in the conversation directory. Title may be empty;
// DisplayTitle supplies the placeholder.
type Summary struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// DisplayTitle returns the title shown in lists, falling back to the
// placeholder for unnamed conversations.
func (s Summary) DisplayTitle() string {
	if s.Title == "" {
		return PlaceholderTitle
	}
	return s.Title
}

// Storage is the conversation-storage collaborator consumed by the
// directory. Implemented by the api client.
type Storage interface {
	ListConversations(ctx context.Context) ([]Summary, error)
	CreateConversation(ctx context.Context) (*Summary, error)
	RenameConversation(ctx context.Context, id, title string) error
	DeleteConversation(ctx context.Context, id string) error
}

// ActivePort is what the directory needs from the session coordinator to
// keep a valid active conversation after deletions.
type ActivePort interface {
	ActiveConversation() string
	SwitchConversation(ctx context.Context, id string) error
}

// Directory loads, caches, and filters conversation summaries. The cache is
// mutated only by the directory's own methods; every other component
// requests changes through them and hears about changes via the refresh
// signal.
type Directory struct {
	mu      sync.Mutex
	storage Storage
	active  ActivePort
	logger  *slog.Logger

	cache         []Summary
	loaded        bool
	reloadTimeout time.Duration
}

// New creates a Directory. active may be nil when no coordinator is wired
// (deletion fallback is then skipped). Pass nil logger for default.
func New(storage Storage, active ActivePort, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		storage:       storage,
		active:        active,
		logger:        logger.With("component", "directory"),
		reloadTimeout: defaultReloadTimeout,
	}
}

// SetReloadTimeout overrides the bound on refresh-triggered reloads.
// Non-positive values are ignored.
func (d *Directory) SetReloadTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloadTimeout = timeout
}

// Reload replaces the cache with a fresh listing from storage, newest
// first. Callers may retry freely; a failed reload leaves the previous
// cache intact.
func (d *Directory) Reload(ctx context.Context) error {
	summaries, err := d.storage.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = summaries
	d.loaded = true
	return nil
}

// List returns cached summaries, loading lazily on first access. When
// searchTerm is non-empty the result is filtered by case-insensitive
// substring match against the display title, so "new" finds unnamed
// conversations.
func (d *Directory) List(ctx context.Context, searchTerm string) ([]Summary, error) {
	d.mu.Lock()
	loaded := d.loaded
	d.mu.Unlock()

	if !loaded {
		if err := d.Reload(ctx); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if searchTerm == "" {
		return append([]Summary(nil), d.cache...), nil
	}

	needle := strings.ToLower(searchTerm)
	var out []Summary
	for _, s := range d.cache {
		if strings.Contains(strings.ToLower(s.DisplayTitle()), needle) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Create makes a new unnamed conversation, puts it at the head of the
// cache, and makes it the active conversation.
func (d *Directory) Create(ctx context.Context) (*Summary, error) {
	created, err := d.storage.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	d.mu.Lock()
	d.cache = append([]Summary{*created}, d.cache...)
	d.loaded = true
	d.mu.Unlock()

	if d.active != nil {
		if err := d.active.SwitchConversation(ctx, created.ID); err != nil {
			d.logger.Error("failed to activate new conversation", "error", err, "conversation_id", created.ID)
		}
	}
	return created, nil
}

// Rename updates a conversation title optimistically and persists it. On
// persistence failure the cache entry is rolled back to its prior value and
// the error is returned; cache and backend never silently diverge.
func (d *Directory) Rename(ctx context.Context, id, newTitle string) error {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prior := d.cache[idx].Title
	d.cache[idx].Title = newTitle
	d.mu.Unlock()

	if err := d.storage.RenameConversation(ctx, id, newTitle); err != nil {
		d.mu.Lock()
		if idx := d.indexLocked(id); idx >= 0 {
			d.cache[idx].Title = prior
		}
		d.mu.Unlock()
		return fmt.Errorf("renaming conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation from the cache and persists the deletion,
// restoring the entry if persistence fails. Deleting the active
// conversation always leaves one active afterward: the first remaining
// summary, or a freshly created conversation when none remain.
func (d *Directory) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := d.cache[idx]
	d.cache = append(d.cache[:idx:idx], d.cache[idx+1:]...)
	d.mu.Unlock()

	if err := d.storage.DeleteConversation(ctx, id); err != nil {
		d.mu.Lock()
		// Restore at the original position; exact order matters less than
		// not losing the entry.
		if idx >= len(d.cache) {
			d.cache = append(d.cache, removed)
		} else {
			d.cache = append(d.cache[:idx], append([]Summary{removed}, d.cache[idx:]...)...)
		}
		d.mu.Unlock()
		return fmt.Errorf("deleting conversation: %w", err)
	}

	if d.active == nil || d.active.ActiveConversation() != id {
		return nil
	}

	// The UI must never point at a deleted conversation.
	d.mu.Lock()
	var fallback string
	if len(d.cache) > 0 {
		fallback = d.cache[0].ID
	}
	d.mu.Unlock()

	if fallback != "" {
		if err := d.active.SwitchConversation(ctx, fallback); err != nil {
			return fmt.Errorf("activating fallback conversation: %w", err)
		}
		return nil
	}

	if _, err := d.Create(ctx); err != nil {
		return fmt.Errorf("creating fallback conversation: %w", err)
	}
	return nil
}

// indexLocked returns the cache index of id or -1. Must be called with mu
// held.
func (d *Directory) indexLocked(id string) int {
	for i, s := range d.cache {
		if s.ID == id {
			return i
		}
	}
	return -1
}
