package models

// All lists every persisted model in foreign key order.
func All() []any {
	return []any{
		&User{},
		&Book{},
		&Loan{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
