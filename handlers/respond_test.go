package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"remindbot/models"
	"remindbot/store"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		category string
		message  string
	}{
		{store.ErrReminderNotFound, http.StatusNotFound, models.ErrorNotFound, "reminder not found"},
		{store.ErrReminderInFlight, http.StatusConflict, models.ErrorInvalidInput, "reminder is being delivered"},
		{fmt.Errorf("%w: message is required", store.ErrInvalidReminder), http.StatusBadRequest, models.ErrorInvalidInput, "invalid reminder: message is required"},
		{errors.New("read reminders.json: input/output error"), http.StatusInternalServerError, models.ErrorInternal, "internal error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		storeError(rec, tc.err)
		resp := decodeBody[models.ErrorResponse](t, rec)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, tc.category, resp.Category)
		assert.Equal(t, tc.message, resp.Error)
	}
}
