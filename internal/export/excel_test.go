package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"servifind/internal/models"
)

func TestBookingsWorkbook(t *testing.T) {
	bookings := []models.Booking{
		{ID: "b1", ProviderID: "p1", ServiceID: "s1", Date: "2026-09-01", Slot: "10:00", PaymentStatus: models.PaymentCompleted},
		{ID: "b2", ProviderID: "p2", ServiceID: "s2", Date: "2026-09-03", Slot: "14:00", PaymentStatus: models.PaymentPending},
	}

	var buf bytes.Buffer
	require.NoError(t, Bookings(bookings, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Booking ID", "Provider", "Service", "Date", "Slot", "Payment Status"}, rows[0])
	assert.Equal(t, []string{"b1", "p1", "s1", "2026-09-01", "10:00", "completed"}, rows[1])
	assert.Equal(t, []string{"b2", "p2", "s2", "2026-09-03", "14:00", "pending"}, rows[2])
}

func TestBookingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Bookings(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
