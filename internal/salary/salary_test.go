package salary

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"qrattend/internal/store/storetest"
)

func TestSaveUpsertsByTeacherName(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(storetest.Open(t).Client)

	first, err := repo.Save(ctx, Rate{TeacherName: "Alice", SalaryPerClass: 2000, TransportationFee: 500})
	require.NoError(t, err)
	second, err := repo.Save(ctx, Rate{TeacherName: " Alice ", SalaryPerClass: 2500, TransportationFee: 600})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2500, second.SalaryPerClass)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, first.ID))
	assert.ErrorIs(t, repo.Delete(ctx, first.ID), ErrNotFound)
}

func TestSaveRejectsInvalid(t *testing.T) {
	repo := NewRepository(storetest.Open(t).Client)
	_, err := repo.Save(context.Background(), Rate{TeacherName: "", SalaryPerClass: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = repo.Save(context.Background(), Rate{TeacherName: "Bob", SalaryPerClass: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPayrollJoinsAttendance(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t).Client
	repo := NewRepository(db)
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	_, err := db.ExecContext(ctx, `INSERT INTO users (name, email, created_at) VALUES ('Alice', 'alice@example.com', ?)`, now)
	require.NoError(t, err)
	for _, row := range []struct {
		date    string
		present bool
		classes int
	}{
		{"2024-06-03", true, 2},
		{"2024-06-04", true, 3},
		{"2024-06-05", false, 0},
		{"2024-07-01", true, 4},
	} {
		_, err := db.ExecContext(ctx, `
			INSERT INTO attendance (user_id, work_date, is_present, class_count, created_at, updated_at)
			VALUES (1, ?, ?, ?, ?, ?)`, row.date, row.present, row.classes, now, now)
		require.NoError(t, err)
	}
	_, err = repo.Save(ctx, Rate{TeacherName: "Alice", SalaryPerClass: 1000, TransportationFee: 300})
	require.NoError(t, err)
	_, err = repo.Save(ctx, Rate{TeacherName: "Zed", SalaryPerClass: 900})
	require.NoError(t, err)

	lines, err := repo.Payroll(ctx, "2024-06")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 5, lines[0].Classes)
	assert.Equal(t, 2, lines[0].DaysPresent)
	assert.Equal(t, 5*1000+2*300, lines[0].Total())
	assert.Equal(t, 0, lines[1].Classes)

	lines, err = repo.Payroll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, lines[0].Classes)

	_, err = repo.Payroll(ctx, "2024-13")
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestWriteXLSX(t *testing.T) {
	lines := []Line{{Rate: Rate{TeacherName: "Alice", SalaryPerClass: 1000, TransportationFee: 300}, Classes: 5, DaysPresent: 2}}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, "2024-06", lines))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Teacher", rows[0][0])
	assert.Equal(t, []string{"Alice", "1000", "300", "5", "2", "5600"}, rows[1])
}
