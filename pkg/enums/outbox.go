package enums

// OutboxEventType labels a domain event queued for publication.
type OutboxEventType string

const (
	EventSessionCreated           OutboxEventType = "session.created"
	EventSessionRotated           OutboxEventType = "session.rotated"
	EventSessionExpired           OutboxEventType = "session.expired"
	EventSessionReleased          OutboxEventType = "session.released"
	EventDepositCompleted         OutboxEventType = "deposit.completed"
	EventDepositRejected          OutboxEventType = "deposit.rejected"
	EventAccessPaymentUnfulfilled OutboxEventType = "access.payment_unfulfilled"
	EventCopyTransferred          OutboxEventType = "copy.transferred"
)

// OutboxAggregateType labels the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateViewingSession OutboxAggregateType = "viewing_session"
	AggregateDeposit        OutboxAggregateType = "deposit"
	AggregatePhysicalCopy   OutboxAggregateType = "physical_copy"
	AggregateMovie          OutboxAggregateType = "movie"
)
