// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import "net/http"

// HTTPStatus maps the code carried by err onto a status from statuses.
// Errors without a mapped code yield 500.
func HTTPStatus(err error, statuses map[string]int) int {
	if status, ok := statuses[Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
