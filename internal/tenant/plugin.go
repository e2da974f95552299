package tenant

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"crmhub/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// PluginName is the name the scoping plugin registers under in gorm.Config.Plugins.
const PluginName = "tenant:scope"

const skipSettingKey = "tenant:skip"

// attachment is the resolved scoping configuration of one table.
type attachment struct {
	table     string
	fieldName string
	column    string
	cfg       ScopeConfig
	parse     func(string) (any, error)
	columnRe  *regexp.Regexp
}

// Plugin rewrites every statement issued against an attached table so that it only
// touches rows of the organization in the request scope. Queries, counts, row scans
// (group-by aggregations), updates and deletes get an org predicate; creates get the
// org field filled in.
type Plugin struct {
	logger *zap.Logger

	mu     sync.RWMutex
	tables map[string]*attachment
}

// NewPlugin creates the scoping plugin. Install it with db.Use before calling Attach.
func NewPlugin(logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		logger: logger.Named("tenant"),
		tables: make(map[string]*attachment),
	}
}

// Name implements gorm.Plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// Initialize implements gorm.Plugin.
func (p *Plugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:before_create").Register("tenant:assign_org", p.assignOrg); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant:scope_query", p.scopeStatement); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:scope_row", p.scopeStatement); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:scope_update", p.scopeMutation); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant:scope_delete", p.scopeMutation)
}

// Attach enables scoping for the table of model on db. db must have the plugin
// installed. A model without the org field is left alone.
func Attach(db *gorm.DB, model any, cfg ScopeConfig) error {
	p, ok := db.Config.Plugins[PluginName].(*Plugin)
	if !ok {
		return fmt.Errorf("tenant: plugin %s is not installed", PluginName)
	}
	return p.Attach(db, model, cfg)
}

// Attach enables scoping for the table of model.
func (p *Plugin) Attach(db *gorm.DB, model any, cfg ScopeConfig) error {
	s, err := schema.Parse(model, &sync.Map{}, db.NamingStrategy)
	if err != nil {
		return fmt.Errorf("tenant: parse model: %w", err)
	}
	if cfg.OrgField == "" {
		cfg.OrgField = DefaultOrgField
	}

	field := s.LookUpField(cfg.OrgField)
	if field == nil || field.DBName == "" {
		p.logger.Warn("model has no org field, scoping skipped",
			zap.String("table", s.Table),
			zap.String("org_field", cfg.OrgField),
		)
		return nil
	}

	parse := cfg.ParseOrgID
	if parse == nil {
		if parse, err = parserFor(field.FieldType); err != nil {
			return fmt.Errorf("tenant: table %s: %w", s.Table, err)
		}
	}

	att := &attachment{
		table:     s.Table,
		fieldName: field.Name,
		column:    field.DBName,
		cfg:       cfg,
		parse:     parse,
		columnRe:  regexp.MustCompile(`(?i)(^|[^\w])` + regexp.QuoteMeta(field.DBName) + `($|[^\w])`),
	}

	p.mu.Lock()
	p.tables[s.Table] = att
	p.mu.Unlock()

	p.logger.Debug("tenant scoping attached",
		zap.String("table", s.Table),
		zap.String("column", field.DBName),
		zap.Strings("exempt_roles", cfg.ExemptRoles),
	)
	return nil
}

// WithoutTenant marks a single query so that it skips org filtering regardless of the
// request scope. Use it for deliberate cross-tenant reads.
//
//	tenant.WithoutTenant(db.WithContext(ctx)).Where("name = ?", name).First(&tpl)
func WithoutTenant(db *gorm.DB) *gorm.DB {
	return db.Set(skipSettingKey, true)
}

// SkipTenant is WithoutTenant in scope form: db.Scopes(tenant.SkipTenant).
func SkipTenant(db *gorm.DB) *gorm.DB {
	return db.Set(skipSettingKey, true)
}

func (p *Plugin) lookup(stmt *gorm.Statement) *attachment {
	table := stmt.Table
	if stmt.Schema != nil {
		table = stmt.Schema.Table
	}
	if table == "" {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tables[table]
}

func (p *Plugin) resolve(db *gorm.DB, att *attachment) (any, Decision) {
	skip := false
	if v, ok := db.Get(skipSettingKey); ok {
		skip, _ = v.(bool)
	}

	tc, decision := Decide(db.Statement.Context, att.cfg, skip)
	if decision != DecisionScope {
		return nil, decision
	}

	value, err := att.parse(tc.OrgID)
	if err != nil {
		p.logger.Warn("invalid org id in request scope, statement left unscoped",
			zap.String("table", att.table),
			zap.String("org_id", tc.OrgID),
			zap.Error(err),
		)
		return nil, DecisionInvalidOrg
	}
	return value, DecisionScope
}

func (p *Plugin) scopeStatement(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	stmt := db.Statement
	// Raw SQL is already built and cannot be rewritten.
	if stmt.SQL.Len() > 0 {
		return
	}
	att := p.lookup(stmt)
	if att == nil {
		return
	}

	value, decision := p.resolve(db, att)
	if decision == DecisionScope && whereConstrains(stmt, att) {
		decision = DecisionExplicit
	}
	metrics.TenantScopeDecisions.WithLabelValues(att.table, decision.String()).Inc()
	if decision != DecisionScope {
		return
	}

	stmt.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: att.column}, Value: value},
	}})
}

// scopeMutation keeps gorm's missing-WHERE guard for updates and deletes: the org
// predicate alone must not turn a conditionless statement into an org-wide rewrite.
func (p *Plugin) scopeMutation(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	stmt := db.Statement
	if stmt.SQL.Len() == 0 && !db.AllowGlobalUpdate && p.lookup(stmt) != nil && !hasConditions(stmt) {
		_ = db.AddError(gorm.ErrMissingWhereClause)
		return
	}
	p.scopeStatement(db)
}

// hasConditions reports whether the caller constrained the statement, either with a
// WHERE clause or through primary key values on the model gorm turns into one.
func hasConditions(stmt *gorm.Statement) bool {
	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 0 {
			return true
		}
	}
	if stmt.Schema == nil || len(stmt.Schema.PrimaryFields) == 0 {
		return false
	}
	for _, rv := range []reflect.Value{stmt.ReflectValue, reflect.ValueOf(stmt.Model)} {
		rv = reflect.Indirect(rv)
		if !rv.IsValid() {
			continue
		}
		t := rv.Type()
		if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
			t = t.Elem()
			for t.Kind() == reflect.Ptr {
				t = t.Elem()
			}
		}
		if t != stmt.Schema.ModelType {
			continue
		}
		if _, values := schema.GetIdentityFieldValuesMap(stmt.Context, rv, stmt.Schema.PrimaryFields); len(values) > 0 {
			return true
		}
	}
	return false
}

func (p *Plugin) assignOrg(db *gorm.DB) {
	if db.Error != nil || db.Statement.Schema == nil {
		return
	}
	att := p.lookup(db.Statement)
	if att == nil {
		return
	}

	ctx := db.Statement.Context
	tc, ok := Get(ctx)
	if !ok || strings.TrimSpace(tc.OrgID) == "" {
		return
	}
	value, err := att.parse(tc.OrgID)
	if err != nil {
		p.logger.Warn("invalid org id in request scope, record not tagged",
			zap.String("table", att.table),
			zap.String("org_id", tc.OrgID),
		)
		return
	}

	field := db.Statement.Schema.LookUpField(att.fieldName)
	if field == nil {
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			setIfZero(ctx, db, field, reflect.Indirect(rv.Index(i)), value)
		}
	case reflect.Struct:
		setIfZero(ctx, db, field, rv, value)
	}

	switch dest := db.Statement.Dest.(type) {
	case map[string]interface{}:
		assignMap(dest, att, value)
	case *map[string]interface{}:
		assignMap(*dest, att, value)
	case []map[string]interface{}:
		for _, m := range dest {
			assignMap(m, att, value)
		}
	case *[]map[string]interface{}:
		for _, m := range *dest {
			assignMap(m, att, value)
		}
	}
}

func setIfZero(ctx context.Context, db *gorm.DB, field *schema.Field, rv reflect.Value, value any) {
	if rv.Kind() != reflect.Struct {
		return
	}
	if _, zero := field.ValueOf(ctx, rv); !zero {
		return
	}
	if err := field.Set(ctx, rv, value); err != nil {
		_ = db.AddError(fmt.Errorf("tenant: assign org: %w", err))
	}
}

func assignMap(m map[string]interface{}, att *attachment, value any) {
	if m == nil {
		return
	}
	for _, key := range []string{att.fieldName, att.column} {
		if v, ok := m[key]; ok && !isZeroValue(v) {
			return
		}
	}
	m[att.column] = value
}

func isZeroValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		return rv.IsNil()
	}
	return rv.IsZero()
}

func whereConstrains(stmt *gorm.Statement, att *attachment) bool {
	c, ok := stmt.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	return exprsConstrain(where.Exprs, att)
}

func exprsConstrain(exprs []clause.Expression, att *attachment) bool {
	for _, expr := range exprs {
		if exprConstrains(expr, att) {
			return true
		}
	}
	return false
}

func exprConstrains(expr clause.Expression, att *attachment) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return att.matchesColumn(e.Column)
	case clause.Neq:
		return att.matchesColumn(e.Column)
	case clause.Gt:
		return att.matchesColumn(e.Column)
	case clause.Gte:
		return att.matchesColumn(e.Column)
	case clause.Lt:
		return att.matchesColumn(e.Column)
	case clause.Lte:
		return att.matchesColumn(e.Column)
	case clause.Like:
		return att.matchesColumn(e.Column)
	case clause.IN:
		return att.matchesColumn(e.Column)
	case clause.Expr:
		return att.columnRe.MatchString(e.SQL)
	case clause.NamedExpr:
		return att.columnRe.MatchString(e.SQL)
	case clause.AndConditions:
		return exprsConstrain(e.Exprs, att)
	case clause.OrConditions:
		return exprsConstrain(e.Exprs, att)
	case clause.NotConditions:
		return exprsConstrain(e.Exprs, att)
	case clause.Where:
		return exprsConstrain(e.Exprs, att)
	}
	return false
}

func (a *attachment) matchesColumn(column any) bool {
	var name string
	switch c := column.(type) {
	case string:
		name = c
	case clause.Column:
		if c.Raw {
			return a.columnRe.MatchString(c.Name)
		}
		name = c.Name
	default:
		return false
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Trim(name, "`\"[] ")
	return strings.EqualFold(name, a.column) || strings.EqualFold(name, a.fieldName)
}

var uuidType = reflect.TypeOf(uuid.UUID{})

func parserFor(t reflect.Type) (func(string) (any, error), error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == uuidType:
		return func(raw string) (any, error) {
			return ParseOrgUUID(raw)
		}, nil
	case t.Kind() == reflect.String:
		return func(raw string) (any, error) {
			return NormalizeOrgID(raw)
		}, nil
	}
	return nil, fmt.Errorf("unsupported org field type %s", t)
}
