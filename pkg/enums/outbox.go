package enums

// OutboxAggregateType names the entity an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateLoan OutboxAggregateType = "loan"
	AggregateBook OutboxAggregateType = "book"
)

var aggregateTypes = valueSet[OutboxAggregateType]{AggregateLoan, AggregateBook}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType names a domain event. It doubles as the routing key suffix.
type OutboxEventType string

const (
	EventLoanBorrowed OutboxEventType = "loan_borrowed"
	EventLoanReturned OutboxEventType = "loan_returned"
	EventLoanOverdue  OutboxEventType = "loan_overdue"
	EventBookResized  OutboxEventType = "book_resized"
)

var eventTypes = valueSet[OutboxEventType]{
	EventLoanBorrowed,
	EventLoanReturned,
	EventLoanOverdue,
	EventBookResized,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why the relay dead-lettered a row. The values
// mirror chk_outbox_dlq_reason.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = valueSet[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
