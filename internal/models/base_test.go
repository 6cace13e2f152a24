package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestInitDBAndEnsureAdmin(t *testing.T) {
	db, err := InitDB(DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: logger.Silent})
	require.NoError(t, err)

	created, err := EnsureAdmin(db, "admin", "", "Admin")
	require.NoError(t, err)
	assert.False(t, created, "empty password disables bootstrapping")

	created, err = EnsureAdmin(db, "admin", "change-me-now", "Admin")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdmin(db, "other", "another-pass", "Other")
	require.NoError(t, err)
	assert.False(t, created)

	var admin User
	require.NoError(t, db.Where("username = ?", "admin").First(&admin).Error)
	assert.Equal(t, RoleAdmin, admin.Role)
	assert.True(t, admin.IsActive)
	assert.True(t, admin.CheckPassword("change-me-now"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestDoctorAvailableDaysRoundTrip(t *testing.T) {
	db, err := InitDB(DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: logger.Silent})
	require.NoError(t, err)

	d := Doctor{
		FirstName: "Ana", LastName: "Silva", Email: "ana@clinic.test", Phone: "1",
		Specialization: SpecCardiologist, Gender: GenderFemale, Location: "Wing A",
		IsAvailable: true, StartTime: "09:00", EndTime: "17:00",
		AvailableDays: []string{"monday", "friday"},
	}
	require.NoError(t, db.Create(&d).Error)

	var loaded Doctor
	require.NoError(t, db.First(&loaded, d.ID).Error)
	assert.Equal(t, []string{"monday", "friday"}, loaded.AvailableDays)
}
