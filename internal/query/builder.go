package query

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
)

const (
	tableBooks = "books"
	tableLoans = "loans"
	tableUsers = "users"
)

// The default dialect emits "?" placeholders, which gorm rebinds for whichever
// driver the connection uses.
var dialect = goqu.Dialect("default")

var (
	bookCol = func(name string) exp.IdentifierExpression { return goqu.T(tableBooks).Col(name) }
	loanCol = func(name string) exp.IdentifierExpression { return goqu.T(tableLoans).Col(name) }
	userCol = func(name string) exp.IdentifierExpression { return goqu.T(tableUsers).Col(name) }
)

func availableBooksQuery() (string, []any, error) {
	return dialect.From(tableBooks).
		Prepared(true).
		Select(
			bookCol("id"),
			bookCol("title"),
			bookCol("author"),
			bookCol("publisher"),
			bookCol("total_copies"),
			bookCol("available_copies"),
		).
		Where(
			bookCol("deleted_at").IsNull(),
			bookCol("available_copies").Gt(0),
		).
		Order(bookCol("title").Asc(), bookCol("id").Asc()).
		ToSQL()
}

type loanFilter struct {
	userID        *uuid.UUID
	overdueBefore *time.Time
}

// activeLoansQuery joins open loans with their book and borrower.
func activeLoansQuery(filter loanFilter) (string, []any, error) {
	conditions := []exp.Expression{loanCol("date_return").IsNull()}
	if filter.userID != nil {
		conditions = append(conditions, loanCol("user_id").Eq(filter.userID.String()))
	}
	order := []exp.OrderedExpression{loanCol("date_borrowed").Asc(), loanCol("id").Asc()}
	if filter.overdueBefore != nil {
		conditions = append(conditions, loanCol("due_date").Lt(filter.overdueBefore.UTC()))
		order = []exp.OrderedExpression{loanCol("due_date").Asc(), loanCol("id").Asc()}
	}

	return dialect.From(tableLoans).
		Prepared(true).
		Select(
			loanCol("id").As("loan_id"),
			loanCol("date_borrowed").As("borrowed_at"),
			loanCol("due_date").As("due_date"),
			bookCol("id").As("book_id"),
			bookCol("title").As("book_title"),
			bookCol("author").As("book_author"),
			userCol("id").As("user_id"),
			userCol("name").As("user_name"),
			userCol("email").As("user_email"),
		).
		InnerJoin(goqu.T(tableBooks), goqu.On(bookCol("id").Eq(loanCol("book_id")))).
		InnerJoin(goqu.T(tableUsers), goqu.On(userCol("id").Eq(loanCol("user_id")))).
		Where(conditions...).
		Order(order...).
		ToSQL()
}

func statsQuery() (string, []any, error) {
	count := func(table string, where ...exp.Expression) *goqu.SelectDataset {
		return dialect.From(table).Select(goqu.COUNT(goqu.Star())).Where(where...)
	}
	return dialect.Select(
		count(tableBooks, bookCol("deleted_at").IsNull()).As("total_books"),
		count(tableUsers).As("total_users"),
		count(tableBooks, bookCol("deleted_at").IsNull(), bookCol("available_copies").Gt(0)).As("available_books"),
		count(tableLoans, loanCol("date_return").IsNull()).As("active_loans"),
	).
		Prepared(true).
		ToSQL()
}
