package query

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type cond struct {
	sql  string
	args []any
}

type orderBy struct {
	field Field
	desc  bool
}

// Meta is the pagination summary returned next to a page of results.
type Meta struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	Total     int `json:"total"`
	TotalPage int `json:"totalPage"`
}

// Builder composes a bounded SELECT and a matching COUNT from untrusted
// parameters. Stages may be applied individually and reapplying a stage
// replaces its previous effect.
type Builder struct {
	res    *Resource
	params map[string]string

	scope   []cond
	search  []cond
	filters []cond
	order   []orderBy
	columns []Field

	paged       bool
	page, limit int
	projected   bool
	relations   []string
	warnings    map[string][]string
}

func NewBuilder(res *Resource, params map[string]string) *Builder {
	return &Builder{
		res:      res,
		params:   maps.Clone(params),
		warnings: make(map[string][]string),
	}
}

// Scope adds a trusted base predicate, applied to both the page and the count.
// Placeholders are written as '?'.
func (b *Builder) Scope(expr string, args ...any) *Builder {
	b.scope = append(b.scope, cond{sql: expr, args: args})
	return b
}

// Apply runs every stage in order.
func (b *Builder) Apply(searchable ...string) *Builder {
	if len(searchable) == 0 {
		searchable = b.res.Searchable
	}
	return b.Search(searchable).Filter().Sort().Paginate().Fields()
}

func (b *Builder) Search(fields []string) *Builder {
	b.search = nil
	b.warnings["search"] = nil
	term := strings.TrimSpace(b.params[KeySearchTerm])
	if term == "" {
		return b
	}
	pattern := "%" + escapeLike(term) + "%"
	var ors []string
	var args []any
	for _, name := range fields {
		f, ok := b.res.Field(name)
		if !ok {
			b.warn("search", "unknown search field %q", name)
			continue
		}
		ors = append(ors, f.searchExpr()+` ILIKE ? ESCAPE '\'`)
		args = append(args, pattern)
	}
	if len(ors) > 0 {
		b.search = []cond{{sql: "(" + strings.Join(ors, " OR ") + ")", args: args}}
	}
	return b
}

func (b *Builder) Filter() *Builder {
	b.filters = nil
	b.warnings["filter"] = nil

	keys := slices.Sorted(maps.Keys(b.params))
	for _, key := range keys {
		if _, skip := reserved[key]; skip {
			continue
		}
		raw := b.params[key]
		f, ok := b.res.Field(key)
		if !ok {
			b.warn("filter", "unknown filter %q ignored", key)
			continue
		}
		if allowed, isEnum := b.res.Enums[key]; isEnum && !slices.Contains(allowed, raw) {
			b.warn("filter", "%s=%q is not one of %v, constraint dropped", key, raw, allowed)
			continue
		}
		v, err := f.convert(raw)
		if err != nil {
			b.warn("filter", "%s=%q is not a valid value, constraint dropped", key, raw)
			continue
		}
		b.filters = append(b.filters, cond{sql: f.Column + " = ?", args: []any{v}})
	}

	price, hasPrice := b.res.Field(b.res.Price)
	for _, bound := range []struct {
		key, op string
	}{{KeyMinPrice, ">="}, {KeyMaxPrice, "<="}} {
		raw, ok := b.params[bound.key]
		if !ok || raw == "" {
			continue
		}
		if !hasPrice {
			b.warn("filter", "%s is not supported here", bound.key)
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			b.warn("filter", "%s=%q is not a number, constraint dropped", bound.key, raw)
			continue
		}
		b.filters = append(b.filters, cond{sql: price.Column + " " + bound.op + " ?", args: []any{d}})
	}
	return b
}

func (b *Builder) Sort() *Builder {
	b.order = nil
	b.warnings["sort"] = nil
	for _, tok := range strings.Split(b.params[KeySort], ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		desc := strings.HasPrefix(tok, "-")
		name := strings.TrimLeft(tok, "-+")
		f, ok := b.res.Field(name)
		if !ok {
			b.warn("sort", "unknown sort field %q", name)
			continue
		}
		if b.sortsBy(f.Name) {
			continue
		}
		b.order = append(b.order, orderBy{field: f, desc: desc})
	}
	if len(b.order) == 0 {
		if f, ok := b.res.Field(b.res.Created); ok {
			b.order = append(b.order, orderBy{field: f, desc: true})
		}
	}
	if key, ok := b.res.Field(b.res.Key); ok && !b.sortsBy(key.Name) {
		b.order = append(b.order, orderBy{field: key})
	}
	return b
}

func (b *Builder) sortsBy(name string) bool {
	return slices.ContainsFunc(b.order, func(o orderBy) bool { return o.field.Name == name })
}

func (b *Builder) Paginate() *Builder {
	b.warnings["paginate"] = nil
	b.page, b.limit = b.paging(true)
	b.paged = true
	return b
}

func (b *Builder) paging(report bool) (page, limit int) {
	page = b.intParam(KeyPage, DefaultPage, report)
	limit = b.intParam(KeyLimit, DefaultLimit, report)
	// The offset (page-1)*limit must not wrap.
	if maxPage := math.MaxInt / limit; page-1 > maxPage {
		if report {
			b.warn("paginate", "page=%d is out of range for limit=%d, using %d", page, limit, maxPage+1)
		}
		page = maxPage + 1
	}
	return page, limit
}

func (b *Builder) intParam(key string, def int, report bool) int {
	raw := strings.TrimSpace(b.params[key])
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		if report {
			b.warn("paginate", "%s=%q is invalid, using %d", key, raw, def)
		}
		return def
	}
	return n
}

func (b *Builder) Fields() *Builder {
	b.columns = nil
	b.relations = nil
	b.projected = true
	b.warnings["fields"] = nil

	var include, exclude, relInclude, relExclude []string
	for _, tok := range strings.Split(b.params[KeyFields], ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name := strings.TrimLeft(tok, "-+")
		_, isField := b.res.Field(name)
		isRelation := slices.Contains(b.res.Relations, name)
		switch {
		case !isField && !isRelation:
			b.warn("fields", "unknown field %q", name)
		case strings.HasPrefix(tok, "-") && isField:
			exclude = append(exclude, name)
		case strings.HasPrefix(tok, "-"):
			relExclude = append(relExclude, name)
		case isField:
			include = append(include, name)
		default:
			relInclude = append(relInclude, name)
		}
	}
	including := len(include)+len(relInclude) > 0
	if !including && len(exclude)+len(relExclude) == 0 && b.res.Hidden != "" {
		exclude = []string{b.res.Hidden}
	}

	for _, f := range b.res.Fields {
		if f.Name != b.res.Key {
			if including && !slices.Contains(include, f.Name) {
				continue
			}
			if slices.Contains(exclude, f.Name) {
				continue
			}
		}
		b.columns = append(b.columns, f)
	}
	for _, rel := range b.res.Relations {
		if (including && !slices.Contains(relInclude, rel)) || slices.Contains(relExclude, rel) {
			continue
		}
		b.relations = append(b.relations, rel)
	}
	return b
}

// Includes reports whether the relation named rel is part of the projection.
func (b *Builder) Includes(rel string) bool {
	if !b.projected {
		return slices.Contains(b.res.Relations, rel)
	}
	return slices.Contains(b.relations, rel)
}

// Selected lists the API names of every projected column and relation.
func (b *Builder) Selected() []string {
	cols := b.Columns()
	names := make([]string, 0, len(cols)+len(b.res.Relations))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	for _, rel := range b.res.Relations {
		if b.Includes(rel) {
			names = append(names, rel)
		}
	}
	return names
}

// Columns lists the fields the SELECT returns, in order.
func (b *Builder) Columns() []Field {
	if b.columns == nil {
		return b.res.Fields
	}
	return b.columns
}

// Warnings reports parameters that were ignored, in stage order.
func (b *Builder) Warnings() []string {
	var out []string
	for _, stage := range []string{"search", "filter", "sort", "paginate", "fields"} {
		out = append(out, b.warnings[stage]...)
	}
	return out
}

func (b *Builder) warn(stage, format string, args ...any) {
	b.warnings[stage] = append(b.warnings[stage], fmt.Sprintf(format, args...))
}

func (b *Builder) where() []cond {
	all := make([]cond, 0, len(b.scope)+len(b.search)+len(b.filters))
	all = append(all, b.scope...)
	all = append(all, b.search...)
	return append(all, b.filters...)
}

// SelectSQL renders the page query.
func (b *Builder) SelectSQL() (string, []any) {
	cols := b.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Column
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(names, ", ") + " FROM " + b.res.Table)
	args := writeWhere(&sb, b.where())

	if len(b.order) > 0 {
		parts := make([]string, len(b.order))
		for i, o := range b.order {
			parts[i] = o.field.Column
			if o.desc {
				parts[i] += " DESC"
			} else {
				parts[i] += " ASC"
			}
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if b.paged {
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", b.limit, (b.page-1)*b.limit)
	}
	return sb.String(), args
}

// CountSQL renders the total count over the same predicates, ignoring
// ordering, paging and projection.
func (b *Builder) CountSQL() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM " + b.res.Table)
	args := writeWhere(&sb, b.where())
	return sb.String(), args
}

// Meta summarises total for the requested page.
func (b *Builder) Meta(total int) Meta {
	page, limit := b.paging(false)
	return Meta{
		Page:      page,
		Limit:     limit,
		Total:     total,
		TotalPage: int(math.Ceil(float64(total) / float64(limit))),
	}
}

func writeWhere(sb *strings.Builder, conds []cond) []any {
	if len(conds) == 0 {
		return nil
	}
	var args []any
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		parts := strings.Split(c.sql, "?")
		for j, p := range parts {
			sb.WriteString(p)
			if j < len(parts)-1 {
				args = append(args, c.args[j])
				fmt.Fprintf(sb, "$%d", len(args))
			}
		}
	}
	return args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// FromValues flattens url query values, keeping the first value per key.
func FromValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
