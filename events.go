package sqb

import "github.com/zoobzio/capitan"

// Session signals.
var (
	// JoinPerformed is emitted when a join is applied to the engine.
	// Fields: EntityKey, AliasKey, JoinKindKey.
	JoinPerformed = capitan.NewSignal("sqb.join.performed", "Join applied to the query builder")

	// LazyJoinRegistered is emitted when a lazy join is recorded but not yet applied.
	// Fields: EntityKey, AliasKey, JoinKindKey.
	LazyJoinRegistered = capitan.NewSignal("sqb.join.lazy_registered", "Lazy join recorded")

	// LazyJoinPerformed is emitted when a lazy join is materialized because its alias was referenced.
	// Fields: EntityKey, AliasKey, DepthKey.
	LazyJoinPerformed = capitan.NewSignal("sqb.join.lazy_performed", "Lazy join materialized")

	// ParameterBound is emitted when a parameter is bound through the session.
	// Fields: ParameterKey, ImmutableKey.
	ParameterBound = capitan.NewSignal("sqb.parameter.bound", "Query parameter bound")

	// ProposalExpanded is emitted when a proposal is applied to a session.
	// Fields: ProposalKey, ConditionKey.
	ProposalExpanded = capitan.NewSignal("sqb.proposal.expanded", "Proposal expanded into the session")

	// SessionFailed is emitted when a session operation is rejected.
	// Fields: ErrorKey.
	SessionFailed = capitan.NewSignal("sqb.session.failed", "Session operation failed")
)

// Event field keys.
var (
	// EntityKey identifies the entity type a join targets.
	EntityKey = capitan.NewStringKey("entity")

	// AliasKey contains the query alias of a join.
	AliasKey = capitan.NewStringKey("alias")

	// JoinKindKey is INNER or LEFT.
	JoinKindKey = capitan.NewStringKey("join_kind")

	// DepthKey is the recursion depth at which a lazy join was materialized.
	DepthKey = capitan.NewIntKey("depth")

	// ParameterKey contains the parameter name.
	ParameterKey = capitan.NewStringKey("parameter")

	// ImmutableKey is 1 when the parameter was bound as immutable, 0 otherwise.
	ImmutableKey = capitan.NewIntKey("immutable")

	// ProposalKey contains the proposal name.
	ProposalKey = capitan.NewStringKey("proposal")

	// ConditionKey contains the condition text produced by an expansion.
	ConditionKey = capitan.NewStringKey("condition")

	// ErrorKey contains the error message.
	ErrorKey = capitan.NewStringKey("error")
)
