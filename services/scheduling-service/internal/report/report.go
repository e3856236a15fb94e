package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	SheetAppointments = "appointments"
	SheetReminders    = "reminders"
	ContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	appointmentHeader = []any{
		"appointment_id", "patient_id", "name", "email", "phone", "doctor", "location", "date",
		"start_time", "end_time", "duration_min", "insurance_carrier", "insurance_member_id",
		"insurance_group_id", "status", "created_at", "confirmed_at",
	}
	reminderHeader = []any{"appointment_id", "sequence", "send_at", "channel", "message"}
)

// FileName is the export name for a report generated at now.
func FileName(now time.Time) string {
	return "admin_report_" + now.Format("20060102_150405") + ".xlsx"
}

// Write renders the admin workbook: one sheet of appointments, one of reminders.
func Write(w io.Writer, appts []model.Appointment, reminders []model.Reminder) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetAppointments); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetReminders); err != nil {
		return err
	}

	if err := setRow(f, SheetAppointments, 1, appointmentHeader); err != nil {
		return err
	}
	for i, a := range appts {
		confirmed := ""
		if a.ConfirmedAt != nil {
			confirmed = a.ConfirmedAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			a.ID, a.PatientID, a.PatientName, a.Email, a.Phone, a.Doctor, a.Location, a.Date,
			a.StartTime.String(), a.EndTime.String(), a.Duration, a.Insurance.Carrier, a.Insurance.MemberID,
			a.Insurance.GroupID, a.Status, a.CreatedAt.UTC().Format(time.RFC3339), confirmed,
		}
		if err := setRow(f, SheetAppointments, i+2, row); err != nil {
			return err
		}
	}

	if err := setRow(f, SheetReminders, 1, reminderHeader); err != nil {
		return err
	}
	for i, r := range reminders {
		row := []any{r.AppointmentID, r.Sequence, r.SendAt.Format("2006-01-02T15:04"), r.Channel, r.Message}
		if err := setRow(f, SheetReminders, i+2, row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// Bytes renders the workbook into memory.
func Bytes(appts []model.Appointment, reminders []model.Reminder) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, appts, reminders); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}
