package tickets

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-frontdesk-server/internal/models"
)

func TestRender(t *testing.T) {
	item := &models.QueueItem{
		QueueNumber:       7,
		QueueDay:          "2024-01-10",
		Status:            models.QueueWaiting,
		Priority:          models.PriorityUrgent,
		Reason:            "fever",
		EstimatedWaitTime: 30,
		Patient:           &models.Patient{FirstName: "Ann", LastName: "Doe"},
	}
	item.CreatedAt = time.Date(2024, 1, 10, 9, 15, 0, 0, time.UTC)

	out, err := Render(item, "Northside Clinic", time.UTC)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 500)
}

func TestRenderWithoutPatient(t *testing.T) {
	out, err := Render(&models.QueueItem{QueueNumber: 1, QueueDay: "2024-01-10", Status: models.QueueWithDoctor}, "Clinic", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = Render(nil, "Clinic", nil)
	assert.Error(t, err)
}
