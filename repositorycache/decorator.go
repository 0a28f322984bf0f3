package repositorycache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-result-cache/cache"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// recordTagSuffix names the companion tag that holds single-entity keys.
// Only criteria writes, which cannot name the rows they touch, invalidate it.
const recordTagSuffix = ".records"

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a base repository with tag-invalidated caching.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cache         cache.Service
	keySerializer cache.KeySerializer
	db            *bun.DB
	logger        *slog.Logger

	entity    string
	tag       string
	recordTag string
	ttl       time.Duration
}

// New wraps base with caching backed by svc.
//
// Query reads (List, Count, Get and GetByID with criteria) are registered
// under the repository tag, which every write invalidates. Entity keys from
// a plain GetByID are registered under "<tag>.records" instead: writes that
// name their rows evict those keys with Delete, and criteria writes, which
// cannot name them, invalidate the "<tag>.records" tag.
func New[T any](base repository.Repository[T], svc cache.Service, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{ttl: cache.TTLDefault}
	for _, opt := range opts {
		opt(&o)
	}
	if o.entity == "" {
		o.entity = entityName[T]()
	}
	if o.tag == "" {
		o.tag = inflection.Plural(o.entity)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if svc == nil {
		svc = cache.Nop{}
	}
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}

	return &CachedRepository[T]{
		base:          base,
		cache:         svc,
		keySerializer: keySerializer,
		db:            o.db,
		logger:        o.logger.With("entity", o.entity),
		entity:        o.entity,
		tag:           o.tag,
		recordTag:     o.tag + recordTagSuffix,
		ttl:           o.ttl,
	}
}

// Entity returns the key prefix used by this repository.
func (c *CachedRepository[T]) Entity() string { return c.entity }

// Tag returns the tag this repository's query reads are registered under.
func (c *CachedRepository[T]) Tag() string { return c.tag }

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	}
	key, ok := c.queryKey(ctx, "get", criteria)
	if !ok {
		return fetch(ctx)
	}
	return cache.Fetch(ctx, c.cache, key, c.ttl, c.readTag(ctx), fetch)
}

// GetByID retrieves a record by ID. Without criteria the result is stored
// under the entity key, which writers evict directly.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}

	if len(criteria) == 0 {
		if _, ok := queryKeyFromContext(ctx); !ok {
			return cache.Fetch(ctx, c.cache, cache.EntityKey(c.entity, id), c.ttl, c.recordTag, fetch)
		}
	}

	key, ok := c.queryKey(ctx, "id", criteria, id)
	if !ok {
		return fetch(ctx)
	}
	return cache.Fetch(ctx, c.cache, key, c.ttl, c.readTag(ctx), fetch)
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	fetch := func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	}

	var (
		res listResult[T]
		err error
	)
	if key, ok := c.queryKey(ctx, "list", criteria); ok {
		res, err = cache.Fetch(ctx, c.cache, key, c.ttl, c.readTag(ctx), fetch)
	} else {
		res, err = fetch(ctx)
	}
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	fetch := func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	}
	key, ok := c.queryKey(ctx, "count", criteria)
	if !ok {
		return fetch(ctx)
	}
	return cache.Fetch(ctx, c.cache, key, c.ttl, c.readTag(ctx), fetch)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	key, ok := c.queryKey(ctx, "identifier", criteria, identifier)
	if !ok {
		return fetch(ctx)
	}
	return cache.Fetch(ctx, c.cache, key, c.ttl, c.readTag(ctx), fetch)
}

// Create creates a new record and invalidates the repository tag.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result...)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist. It may have
// written, so it invalidates like Create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, record, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, record, result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, append(append([]T(nil), records...), result...)...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, append(append([]T(nil), records...), result...)...)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, record, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, record, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, append(append([]T(nil), records...), result...)...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, append(append([]T(nil), records...), result...)...)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(ctx, record)
	}
	return err
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// queryKey resolves the key for a read. A context query key wins, then a
// criteria-free read, then the digest of the rendered SQL. ok is false when
// none of these produce a stable key and the read must skip the cache.
func (c *CachedRepository[T]) queryKey(ctx context.Context, method string, criteria []repository.SelectCriteria, scope ...string) (string, bool) {
	if args, found := queryKeyFromContext(ctx); found {
		all := make([]any, 0, len(scope)+len(args)+1)
		all = append(all, method)
		for _, s := range scope {
			all = append(all, s)
		}
		all = append(all, args...)

		key, err := c.keySerializer.SerializeKey(c.entity, all...)
		if err != nil {
			c.logger.Debug("cache bypassed", "method", method, "error", err)
			return "", false
		}
		return key, true
	}

	parts := append([]string{method}, scope...)
	if len(criteria) == 0 {
		return cache.QueryKey(c.entity, parts...), true
	}

	digest, err := c.renderCriteria(criteria)
	if err != nil {
		c.logger.Debug("cache bypassed", "method", method, "error", err)
		return "", false
	}
	return cache.QueryKey(c.entity, append(parts, "q"+digest)...), true
}

var errNoRenderer = errors.New("criteria cannot be keyed without a database handle")

// renderCriteria applies criteria to a select on the model and digests the
// resulting SQL. Criteria are opaque functions; the SQL they produce is the
// only deterministic view of what they select.
func (c *CachedRepository[T]) renderCriteria(criteria []repository.SelectCriteria) (digest string, err error) {
	if c.db == nil {
		return "", errNoRenderer
	}

	defer func() {
		if r := recover(); r != nil {
			digest, err = "", fmt.Errorf("render criteria: %v", r)
		}
	}()

	q := c.db.NewSelect().Model(newModel[T]())
	for _, apply := range criteria {
		if apply != nil {
			q = apply(q)
		}
	}

	sql, err := q.AppendQuery(c.db.Formatter(), nil)
	if err != nil {
		return "", err
	}
	return cache.Digest(string(sql)), nil
}

func (c *CachedRepository[T]) readTag(ctx context.Context) string {
	if tag, ok := readTagFromContext(ctx); ok {
		return tag
	}
	return c.tag
}

// invalidateRecords evicts the entity key of every record and the
// repository tag, plus any tags the caller attached to ctx.
func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, records ...T) {
	for _, record := range records {
		if id, ok := extractID(record); ok {
			c.cache.Delete(cache.EntityKey(c.entity, id))
		}
	}
	c.invalidateTags(ctx, c.tag)
}

// invalidateAll is used by criteria writes, which cannot name the records
// they touched, so every entity key goes too.
func (c *CachedRepository[T]) invalidateAll(ctx context.Context) {
	c.invalidateTags(ctx, c.tag, c.recordTag)
}

func (c *CachedRepository[T]) invalidateTags(ctx context.Context, tags ...string) {
	for _, tag := range dedupeStrings(append(tags, invalidationTagsFromContext(ctx)...)) {
		c.cache.InvalidateTag(tag)
	}
}

// extractID reads the ID field of a record, following pointers.
func extractID(record any) (string, bool) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}

	for _, name := range []string{"ID", "Id"} {
		field := v.FieldByName(name)
		if !field.IsValid() || !field.CanInterface() || field.IsZero() {
			continue
		}
		return fmt.Sprint(field.Interface()), true
	}
	return "", false
}

// newModel returns a pointer to a fresh value of T's underlying struct type.
func newModel[T any]() any {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// entityName derives the default key prefix from the model type name:
// plan for *Plan, website-member for WebsiteMember.
func entityName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "record"
	}
	words := typeWords(name)
	if len(words) == 0 {
		return "record"
	}
	// "-" keeps multi-word prefixes clear of cache.KeySeparator
	return strings.Join(words, "-")
}
