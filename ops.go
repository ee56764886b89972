package sqb

// Op is a query operation forwarded to the Engine.
//
// The set of operations is closed. Engines switch on the concrete type and
// report ErrUnsupportedOperation for anything they do not handle.
type Op interface {
	// ReferencesAliases reports whether the operation can introduce alias
	// references into the query text.
	ReferencesAliases() bool
	op()
}

// Condition parts carried by Where/Having operations are either string or
// *Composite values whose parts are, recursively, the same.

// SelectOp replaces the select list.
type SelectOp struct{ Parts []string }

// AddSelectOp appends to the select list.
type AddSelectOp struct{ Parts []string }

// DistinctOp toggles SELECT DISTINCT.
type DistinctOp struct{ Flag bool }

// FromOp adds a root entity.
type FromOp struct {
	Entity  string
	Alias   string
	IndexBy string
}

// WhereOp replaces the where clause. Several parts are combined with AND.
type WhereOp struct{ Parts []any }

// AndWhereOp appends parts to the where clause with AND.
type AndWhereOp struct{ Parts []any }

// OrWhereOp appends parts to the where clause with OR.
type OrWhereOp struct{ Parts []any }

// GroupByOp replaces the group by list.
type GroupByOp struct{ Parts []string }

// AddGroupByOp appends to the group by list.
type AddGroupByOp struct{ Parts []string }

// HavingOp replaces the having clause.
type HavingOp struct{ Parts []any }

// AndHavingOp appends parts to the having clause with AND.
type AndHavingOp struct{ Parts []any }

// OrHavingOp appends parts to the having clause with OR.
type OrHavingOp struct{ Parts []any }

// OrderByOp replaces the ordering.
type OrderByOp struct {
	Sort  string
	Order string
}

// AddOrderByOp appends an ordering.
type AddOrderByOp struct {
	Sort  string
	Order string
}

// FirstResultOp sets the result offset.
type FirstResultOp struct{ N int }

// MaxResultsOp sets the result limit.
type MaxResultsOp struct{ N int }

// ResetPartOp clears one query part, named by one of the Part constants.
// Resetting PartFrom also clears the joins, since every join hangs off a root.
type ResetPartOp struct{ Part string }

// Query parts accepted by ResetPartOp.
const (
	PartSelect   = "select"
	PartDistinct = "distinct"
	PartFrom     = "from"
	PartJoin     = "join"
	PartWhere    = "where"
	PartGroupBy  = "groupBy"
	PartHaving   = "having"
	PartOrderBy  = "orderBy"
)

func (SelectOp) ReferencesAliases() bool      { return true }
func (AddSelectOp) ReferencesAliases() bool   { return true }
func (DistinctOp) ReferencesAliases() bool    { return false }
func (FromOp) ReferencesAliases() bool        { return true }
func (WhereOp) ReferencesAliases() bool       { return true }
func (AndWhereOp) ReferencesAliases() bool    { return true }
func (OrWhereOp) ReferencesAliases() bool     { return true }
func (GroupByOp) ReferencesAliases() bool     { return true }
func (AddGroupByOp) ReferencesAliases() bool  { return true }
func (HavingOp) ReferencesAliases() bool      { return true }
func (AndHavingOp) ReferencesAliases() bool   { return true }
func (OrHavingOp) ReferencesAliases() bool    { return true }
func (OrderByOp) ReferencesAliases() bool     { return true }
func (AddOrderByOp) ReferencesAliases() bool  { return true }
func (FirstResultOp) ReferencesAliases() bool { return false }
func (MaxResultsOp) ReferencesAliases() bool  { return false }
func (ResetPartOp) ReferencesAliases() bool   { return false }

func (SelectOp) op()      {}
func (AddSelectOp) op()   {}
func (DistinctOp) op()    {}
func (FromOp) op()        {}
func (WhereOp) op()       {}
func (AndWhereOp) op()    {}
func (OrWhereOp) op()     {}
func (GroupByOp) op()     {}
func (AddGroupByOp) op()  {}
func (HavingOp) op()      {}
func (AndHavingOp) op()   {}
func (OrHavingOp) op()    {}
func (OrderByOp) op()     {}
func (AddOrderByOp) op()  {}
func (FirstResultOp) op() {}
func (MaxResultsOp) op()  {}
func (ResetPartOp) op()   {}
