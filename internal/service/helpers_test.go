package service

import "oceanstella/api/internal/apperr"

func errKind(err error) int {
	if err == nil {
		return 0
	}
	return apperr.From(err).Kind.Status()
}
