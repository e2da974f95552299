// Package mongoscope applies the tenant scoping policy to MongoDB collections.
//
// Filters get an org equality condition, aggregation pipelines get a leading $match
// stage and inserted documents get their org field filled from the request scope.
package mongoscope

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"crmhub/internal/metrics"
	"crmhub/internal/tenant"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultOrgField is the bson key holding the owning organization.
const DefaultOrgField = "orgId"

// Collection wraps a mongo collection and scopes every operation to the org in ctx.
type Collection struct {
	coll    *mongo.Collection
	name    string
	field   string
	cfg     tenant.ScopeConfig
	parse   func(string) (any, error)
	enabled bool
	skip    bool
	logger  *zap.Logger
}

// Attach wraps coll. model is a sample document struct; when it has no bson field
// named cfg.OrgField the collection is returned unscoped.
func Attach(coll *mongo.Collection, model any, cfg tenant.ScopeConfig, logger *zap.Logger) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OrgField == "" || cfg.OrgField == tenant.DefaultOrgField {
		cfg.OrgField = DefaultOrgField
	}
	parse := cfg.ParseOrgID
	if parse == nil {
		parse = func(raw string) (any, error) { return tenant.NormalizeOrgID(raw) }
	}

	c := &Collection{
		coll:   coll,
		field:  cfg.OrgField,
		cfg:    cfg,
		parse:  parse,
		logger: logger.Named("mongoscope"),
	}
	if coll != nil {
		c.name = coll.Name()
	}

	if _, ok := bsonFieldIndex(reflect.TypeOf(model), cfg.OrgField); ok {
		c.enabled = true
	} else {
		c.logger.Warn("document has no org field, scoping skipped",
			zap.String("collection", c.name),
			zap.String("org_field", cfg.OrgField),
		)
	}
	return c
}

// WithoutTenant returns a handle whose operations skip org filtering.
func (c *Collection) WithoutTenant() *Collection {
	cp := *c
	cp.skip = true
	return &cp
}

// Raw exposes the underlying collection (index management, drops).
func (c *Collection) Raw() *mongo.Collection {
	return c.coll
}

// Enabled reports whether the collection is scoped at all.
func (c *Collection) Enabled() bool {
	return c.enabled
}

func (c *Collection) resolve(ctx context.Context) (any, tenant.Decision) {
	tc, decision := tenant.Decide(ctx, c.cfg, c.skip)
	if decision != tenant.DecisionScope {
		return nil, decision
	}
	value, err := c.parse(tc.OrgID)
	if err != nil {
		c.logger.Warn("invalid org id in request scope, operation left unscoped",
			zap.String("collection", c.name),
			zap.String("org_id", tc.OrgID),
			zap.Error(err),
		)
		return nil, tenant.DecisionInvalidOrg
	}
	return value, tenant.DecisionScope
}

func (c *Collection) record(decision tenant.Decision) {
	metrics.TenantScopeDecisions.WithLabelValues(c.name, decision.String()).Inc()
}

// Filter returns filter with the org condition added. The input is never modified.
func (c *Collection) Filter(ctx context.Context, filter bson.M) bson.M {
	out := make(bson.M, len(filter)+1)
	for k, v := range filter {
		out[k] = v
	}
	if !c.enabled {
		return out
	}

	value, decision := c.resolve(ctx)
	if decision == tenant.DecisionScope && filterConstrains(filter, c.field) {
		decision = tenant.DecisionExplicit
	}
	c.record(decision)
	if decision == tenant.DecisionScope {
		out[c.field] = value
	}
	return out
}

// Pipeline returns pipeline with a leading $match on the org field, unless the
// leading $match stages already constrain it.
func (c *Collection) Pipeline(ctx context.Context, pipeline mongo.Pipeline) mongo.Pipeline {
	if !c.enabled {
		return pipeline
	}

	value, decision := c.resolve(ctx)
	if decision == tenant.DecisionScope && pipelineConstrains(pipeline, c.field) {
		decision = tenant.DecisionExplicit
	}
	c.record(decision)
	if decision != tenant.DecisionScope {
		return pipeline
	}

	out := make(mongo.Pipeline, 0, len(pipeline)+1)
	out = append(out, bson.D{{Key: "$match", Value: bson.M{c.field: value}}})
	return append(out, pipeline...)
}

// Tag fills the org field of doc from the request scope when it is empty. Struct
// values are copied; pointers are modified in place.
func (c *Collection) Tag(ctx context.Context, doc any) (any, error) {
	if !c.enabled {
		return doc, nil
	}
	tc, ok := tenant.Get(ctx)
	if !ok || strings.TrimSpace(tc.OrgID) == "" {
		return doc, nil
	}
	value, err := c.parse(tc.OrgID)
	if err != nil {
		c.logger.Warn("invalid org id in request scope, document not tagged",
			zap.String("collection", c.name),
			zap.String("org_id", tc.OrgID),
		)
		return doc, nil
	}

	switch d := doc.(type) {
	case bson.M:
		if d == nil {
			d = bson.M{}
		}
		if isZero(d[c.field]) {
			d[c.field] = value
		}
		return d, nil
	case bson.D:
		for i, e := range d {
			if e.Key == c.field {
				if isZero(e.Value) {
					d[i].Value = value
				}
				return d, nil
			}
		}
		return append(d, bson.E{Key: c.field, Value: value}), nil
	case *bson.D:
		tagged, _ := c.Tag(ctx, *d)
		*d = tagged.(bson.D)
		return d, nil
	}
	return tagStruct(doc, c.field, value)
}

// Find runs a scoped find.
func (c *Collection) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	return c.coll.Find(ctx, c.Filter(ctx, filter), opts...)
}

// FindOne runs a scoped findOne.
func (c *Collection) FindOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) *mongo.SingleResult {
	return c.coll.FindOne(ctx, c.Filter(ctx, filter), opts...)
}

// CountDocuments counts matching documents of the caller's org.
func (c *Collection) CountDocuments(ctx context.Context, filter bson.M, opts ...*options.CountOptions) (int64, error) {
	return c.coll.CountDocuments(ctx, c.Filter(ctx, filter), opts...)
}

// UpdateOne runs a scoped updateOne.
func (c *Collection) UpdateOne(ctx context.Context, filter bson.M, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, c.Filter(ctx, filter), update, opts...)
}

// UpdateMany runs a scoped updateMany.
func (c *Collection) UpdateMany(ctx context.Context, filter bson.M, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.coll.UpdateMany(ctx, c.Filter(ctx, filter), update, opts...)
}

// DeleteOne runs a scoped deleteOne.
func (c *Collection) DeleteOne(ctx context.Context, filter bson.M, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, c.Filter(ctx, filter), opts...)
}

// DeleteMany runs a scoped deleteMany.
func (c *Collection) DeleteMany(ctx context.Context, filter bson.M, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.coll.DeleteMany(ctx, c.Filter(ctx, filter), opts...)
}

// Aggregate runs a scoped aggregation.
func (c *Collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	return c.coll.Aggregate(ctx, c.Pipeline(ctx, pipeline), opts...)
}

// InsertOne tags and inserts doc.
func (c *Collection) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	tagged, err := c.Tag(ctx, doc)
	if err != nil {
		return nil, err
	}
	return c.coll.InsertOne(ctx, tagged, opts...)
}

// InsertMany tags and inserts docs.
func (c *Collection) InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	tagged := make([]any, 0, len(docs))
	for _, doc := range docs {
		d, err := c.Tag(ctx, doc)
		if err != nil {
			return nil, err
		}
		tagged = append(tagged, d)
	}
	return c.coll.InsertMany(ctx, tagged, opts...)
}

func filterConstrains(filter any, field string) bool {
	switch f := filter.(type) {
	case bson.M:
		for k, v := range f {
			if k == field {
				return true
			}
			if isLogical(k) && listConstrains(v, field) {
				return true
			}
		}
	case map[string]any:
		return filterConstrains(bson.M(f), field)
	case bson.D:
		for _, e := range f {
			if e.Key == field {
				return true
			}
			if isLogical(e.Key) && listConstrains(e.Value, field) {
				return true
			}
		}
	}
	return false
}

func listConstrains(v any, field string) bool {
	switch list := v.(type) {
	case bson.A:
		return anyConstrains([]any(list), field)
	case []any:
		return anyConstrains(list, field)
	case []bson.M:
		for _, m := range list {
			if filterConstrains(m, field) {
				return true
			}
		}
	case []bson.D:
		for _, d := range list {
			if filterConstrains(d, field) {
				return true
			}
		}
	}
	return false
}

func anyConstrains(list []any, field string) bool {
	for _, item := range list {
		if filterConstrains(item, field) {
			return true
		}
	}
	return false
}

func isLogical(key string) bool {
	return key == "$and" || key == "$or" || key == "$nor"
}

func pipelineConstrains(pipeline mongo.Pipeline, field string) bool {
	for _, stage := range pipeline {
		if len(stage) == 0 || stage[0].Key != "$match" {
			return false
		}
		if filterConstrains(stage[0].Value, field) {
			return true
		}
	}
	return false
}

func tagStruct(doc any, field string, value any) (any, error) {
	rv := reflect.ValueOf(doc)
	if !rv.IsValid() {
		return doc, nil
	}

	target := rv
	result := doc
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return doc, nil
		}
		target = rv.Elem()
	} else if rv.Kind() == reflect.Struct {
		cp := reflect.New(rv.Type())
		cp.Elem().Set(rv)
		target = cp.Elem()
		result = cp.Interface()
	}
	if target.Kind() != reflect.Struct {
		return doc, nil
	}

	idx, ok := bsonFieldIndex(target.Type(), field)
	if !ok {
		return doc, nil
	}
	fv := target.FieldByIndex(idx)
	if !fv.IsZero() {
		return doc, nil
	}

	val := reflect.ValueOf(value)
	switch {
	case val.Type().AssignableTo(fv.Type()):
		fv.Set(val)
	case val.Type().ConvertibleTo(fv.Type()):
		fv.Set(val.Convert(fv.Type()))
	case fv.Kind() == reflect.Ptr && val.Type().AssignableTo(fv.Type().Elem()):
		p := reflect.New(fv.Type().Elem())
		p.Elem().Set(val)
		fv.Set(p)
	default:
		return nil, fmt.Errorf("mongoscope: cannot assign %s to field %s of type %s", val.Type(), field, fv.Type())
	}
	return result, nil
}

// bsonFieldIndex finds the struct field serialized under key, following the
// driver's default naming (lowercased field name) and inline embedding.
func bsonFieldIndex(t reflect.Type, key string) ([]int, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		inline := false
		for _, opt := range parts[1:] {
			if opt == "inline" {
				inline = true
			}
		}
		if inline || (sf.Anonymous && tag == "") {
			if sub, ok := bsonFieldIndex(sf.Type, key); ok {
				return append([]int{i}, sub...), true
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		if name == key {
			return []int{i}, true
		}
	}
	return nil, false
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return rv.IsNil()
	}
	return rv.IsZero()
}
