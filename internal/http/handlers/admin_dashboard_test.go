package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

func TestGetDashboardOverview_Week(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC)
	since := now.AddDate(0, 0, -7)
	handler := NewAdminDashboardHandler(db, logging.Default())
	handler.now = func() time.Time { return now }

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER \(WHERE created_at >= \$1\) FROM leads`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"total", "new"}).AddRow(120, 14))
	mock.ExpectQuery(`FROM conversations`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"total", "open", "active"}).AddRow(118, 90, 33))
	mock.ExpectQuery(`SELECT direction, status, COUNT\(\*\) FROM messages`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"direction", "status", "count"}).
			AddRow("inbound", "delivered", 40).
			AddRow("outbound", "read", 25).
			AddRow("outbound", "delivered", 5).
			AddRow("outbound", "error", 2))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM scheduled_messages GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 6).
			AddRow("sent", 31).
			AddRow("error", 1))

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.GetDashboardOverview(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DashboardOverviewResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, "week", resp.Period)
	require.NotNil(t, resp.Since)
	assert.Equal(t, since.Format(time.RFC3339), *resp.Since)
	assert.Equal(t, LeadMetrics{Total: 120, NewPeriod: 14}, resp.Leads)
	assert.Equal(t, ConversationMetrics{Total: 118, Open: 90, ActivePeriod: 33}, resp.Conversations)
	assert.Equal(t, 72, resp.Messages.Total)
	assert.Equal(t, map[string]int{"inbound": 40, "outbound": 32}, resp.Messages.ByDirection)
	assert.Equal(t, map[string]int{"delivered": 45, "read": 25, "error": 2}, resp.Messages.ByStatus)
	assert.Equal(t, map[string]int{"pending": 6, "sent": 31, "error": 1}, resp.Scheduled)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDashboardOverview_InvalidPeriod(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewAdminDashboardHandler(db, logging.Default())
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard?period=decade", nil)
	rec := httptest.NewRecorder()
	handler.GetDashboardOverview(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDashboardOverview_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM leads`).WillReturnError(errors.New("connection reset"))

	handler := NewAdminDashboardHandler(db, logging.Default())
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard?period=all", nil)
	rec := httptest.NewRecorder()
	handler.GetDashboardOverview(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
