package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound converts sql.ErrNoRows into a nil result without error.
// The Find* lookups here (user by email, user by session code, recent
// session by code) all treat a missing row as an answer, not a failure:
// login and session-code issuance branch on the nil.
//
//	var user model.User
//	err := r.db.GetContext(ctx, &user, query, args...)
//	return HandleNotFound(&user, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
