package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/patients"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/seed"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo schedule and patient CSVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd.Flags())

			start := time.Now()
			if raw := v.GetString("start"); raw != "" {
				t, err := time.Parse(time.DateOnly, raw)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				start = t
			}
			rows := seed.Schedule(start)
			people := seed.PatientList(v.GetInt64("seed"), start)

			schedulePath := v.GetString("schedule-csv")
			if err := writeFile(schedulePath, func(f *os.File) error { return store.WriteSchedule(f, rows) }); err != nil {
				return fmt.Errorf("write schedule: %w", err)
			}
			patientsPath := v.GetString("patients-csv")
			if err := writeFile(patientsPath, func(f *os.File) error { return patients.Write(f, people) }); err != nil {
				return fmt.Errorf("write patients: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d slots to %s and %d patients to %s\n", len(rows), schedulePath, len(people), patientsPath)

			if v.GetBool("import") {
				dsn := v.GetString("database-url")
				if dsn == "" {
					return fmt.Errorf("--import needs DATABASE_URL")
				}
				ctx := cmd.Context()
				pool, err := db.Open(ctx, dsn, db.Options{})
				if err != nil {
					return err
				}
				defer pool.Close()
				n, err := store.NewPostgresStore(pool).Import(ctx, rows)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d slots\n", n)
			}
			return nil
		},
	}
	cmd.Flags().String("start", "", "First schedule day (YYYY-MM-DD), defaults to today")
	cmd.Flags().Int64("seed", seed.DefaultSeed, "Random seed for patient data")
	cmd.Flags().String("schedule-csv", "data/doctor_schedule.csv", "Schedule CSV path")
	cmd.Flags().String("patients-csv", "data/patients.csv", "Patients CSV path")
	cmd.Flags().Bool("import", false, "Also load the schedule into Postgres")
	cmd.Flags().String("database-url", "", "Postgres DSN used with --import")
	return cmd
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
