package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/runtime"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/allocator"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Search and reserve slots in the CSV schedule",
	}
	cmd.AddCommand(slotsSearchCmd(), slotsReserveCmd())
	return cmd
}

func selectorFlags(flags *pflag.FlagSet) {
	flags.String("schedule-csv", "data/doctor_schedule.csv", "Schedule CSV path")
	flags.String("doctor", "", "Doctor id or name")
	flags.String("location", "", "Clinic location")
	flags.String("date", "", "Day (YYYY-MM-DD)")
}

func selectorFrom(v *viper.Viper) slots.Selector {
	return slots.Selector{
		Doctor:   v.GetString("doctor"),
		Location: v.GetString("location"),
		Date:     v.GetString("date"),
	}
}

func newAllocator(v *viper.Viper) *allocator.Allocator {
	return allocator.New(store.NewCSVStore(v.GetString("schedule-csv")), nil, runtime.Discard(), nil, allocator.Options{
		AllowOverwrite: v.GetBool("allow-overwrite"),
	})
}

func slotsSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "List candidate windows for a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd.Flags())
			res, err := newAllocator(v).Search(cmd.Context(), selectorFrom(v), v.GetInt("duration"))
			if err != nil {
				return err
			}
			if res.Windows == nil {
				res.Windows = []slots.Window{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	selectorFlags(cmd.Flags())
	cmd.Flags().Int("duration", 30, "Appointment length in minutes")
	return cmd
}

func slotsReserveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Book a window and write the schedule back",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd.Flags())
			start, err := slots.ParseClock(v.GetString("start"))
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			end, err := slots.ParseClock(v.GetString("end"))
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			id := v.GetString("appointment-id")
			if id == "" {
				id = "A" + uuid.NewString()[:8]
			}
			p, err := newAllocator(v).Reserve(cmd.Context(), allocator.ReserveRequest{
				Selector:      selectorFrom(v),
				Window:        slots.Window{Start: start, End: end},
				AppointmentID: id,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reserved %s-%s as %s (version %s)\n", start, end, id, p.Version)
			return nil
		},
	}
	selectorFlags(cmd.Flags())
	cmd.Flags().String("start", "", "Window start (HH:MM)")
	cmd.Flags().String("end", "", "Window end (HH:MM)")
	cmd.Flags().String("appointment-id", "", "Appointment id, generated when empty")
	cmd.Flags().Bool("allow-overwrite", false, "Re-book slots that are already taken")
	return cmd
}
