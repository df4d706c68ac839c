package odoo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/providentiaww/odoo-mcp-gateway/internal/cache"
	"github.com/rs/zerolog"
)

const (
	// maxCachedSearchLimit bounds the size of cached search results.
	maxCachedSearchLimit = 100
	fieldsCacheTTL       = time.Hour
)

var fieldAttributes = []interface{}{"string", "type", "help"}

// Invoker executes remote methods with an authenticated identity.
type Invoker interface {
	Authenticate(ctx context.Context) (int, error)
	Invoke(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// SearchOptions are the paging and ordering knobs for search-style calls.
// A Limit of zero or less means no limit is sent.
type SearchOptions struct {
	Limit  int
	Offset int
	Order  string
}

func (o SearchOptions) kwargs() map[string]interface{} {
	kw := map[string]interface{}{"offset": o.Offset}
	if o.Limit > 0 {
		kw["limit"] = o.Limit
	}
	if o.Order != "" {
		kw["order"] = o.Order
	}
	return kw
}

// Gateway exposes typed CRUD operations over an Invoker. The cache is optional.
type Gateway struct {
	session Invoker
	cache   *cache.Cache
	logger  zerolog.Logger
}

// NewGateway wraps session. Pass a nil cache to disable response caching.
func NewGateway(session Invoker, c *cache.Cache, logger zerolog.Logger) *Gateway {
	return &Gateway{
		session: session,
		cache:   c,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// Authenticate establishes (or returns) the backend identity.
func (g *Gateway) Authenticate(ctx context.Context) (int, error) {
	return g.session.Authenticate(ctx)
}

// Invoke is the untyped escape hatch for methods without a dedicated wrapper.
func (g *Gateway) Invoke(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return g.session.Invoke(ctx, model, method, args, kwargs)
}

// Search returns matching record ids. Results are cached when 0 < Limit <= 100.
func (g *Gateway) Search(ctx context.Context, model string, domain []interface{}, opts SearchOptions) ([]int, error) {
	if domain == nil {
		domain = []interface{}{}
	}

	var key string
	if g.cache != nil && opts.Limit > 0 && opts.Limit <= maxCachedSearchLimit {
		if dk, ok := domainKey(domain); ok {
			key = cache.MakeKey("search", model, dk, opts.Limit, opts.Offset, opts.Order)
			var ids []int
			if g.cache.Get(ctx, key, &ids) {
				return ids, nil
			}
		}
	}

	reply, err := g.session.Invoke(ctx, model, "search", []interface{}{domain}, opts.kwargs())
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(reply)
	if err != nil {
		return nil, &RemoteCallError{Model: model, Method: "search", Err: err}
	}

	if key != "" {
		g.cache.Set(ctx, key, ids, 0)
	}
	return ids, nil
}

// Read fetches records by id. Empty fields means all fields.
func (g *Gateway) Read(ctx context.Context, model string, ids []int, fields []string) ([]Record, error) {
	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	reply, err := g.session.Invoke(ctx, model, "read", []interface{}{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(reply)
	if err != nil {
		return nil, &RemoteCallError{Model: model, Method: "read", Err: err}
	}
	return records, nil
}

// SearchRead searches and reads in one remote call.
func (g *Gateway) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, opts SearchOptions) ([]Record, error) {
	if domain == nil {
		domain = []interface{}{}
	}
	kwargs := opts.kwargs()
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	reply, err := g.session.Invoke(ctx, model, "search_read", []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(reply)
	if err != nil {
		return nil, &RemoteCallError{Model: model, Method: "search_read", Err: err}
	}
	return records, nil
}

// Create inserts a record and returns its id.
func (g *Gateway) Create(ctx context.Context, model string, values map[string]interface{}) (int, error) {
	reply, err := g.session.Invoke(ctx, model, "create", []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}
	id, ok := asInt(reply)
	if !ok {
		return 0, &RemoteCallError{Model: model, Method: "create", Err: errUnexpected("integer id", reply)}
	}
	return id, nil
}

// Write updates every record in ids with values.
func (g *Gateway) Write(ctx context.Context, model string, ids []int, values map[string]interface{}) (bool, error) {
	reply, err := g.session.Invoke(ctx, model, "write", []interface{}{ids, values}, nil)
	if err != nil {
		return false, err
	}
	ok, err := decodeBool(reply)
	if err != nil {
		return false, &RemoteCallError{Model: model, Method: "write", Err: err}
	}
	return ok, nil
}

// Unlink deletes the records in ids.
func (g *Gateway) Unlink(ctx context.Context, model string, ids []int) (bool, error) {
	reply, err := g.session.Invoke(ctx, model, "unlink", []interface{}{ids}, nil)
	if err != nil {
		return false, err
	}
	ok, err := decodeBool(reply)
	if err != nil {
		return false, &RemoteCallError{Model: model, Method: "unlink", Err: err}
	}
	return ok, nil
}

// GetFields returns the model's field definitions, cached for an hour.
func (g *Gateway) GetFields(ctx context.Context, model string) (map[string]interface{}, error) {
	var key string
	if g.cache != nil {
		key = cache.MakeKey("fields", model)
		var fields map[string]interface{}
		if g.cache.Get(ctx, key, &fields) {
			return fields, nil
		}
	}

	reply, err := g.session.Invoke(ctx, model, "fields_get", []interface{}{},
		map[string]interface{}{"attributes": fieldAttributes})
	if err != nil {
		return nil, err
	}
	fields, err := decodeStruct(reply)
	if err != nil {
		return nil, &RemoteCallError{Model: model, Method: "fields_get", Err: err}
	}

	if key != "" {
		g.cache.Set(ctx, key, fields, fieldsCacheTTL)
	}
	return fields, nil
}

// domainKey renders a domain deterministically for cache keys.
func domainKey(domain []interface{}) (string, bool) {
	raw, err := json.Marshal(domain)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
