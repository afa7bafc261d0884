package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/internal/records"
)

type seedOptions struct {
	doctors      int
	patients     int
	startMinute  int
	endMinute    int
	assignPerDoc int
}

// seedCmd fills an empty database with an approved admin, doctors with
// weekday hours and patients, then prints a token for the admin.
func seedCmd(e *env) *cobra.Command {
	opts := seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo actors and availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			s := &seeder{
				actors:       identity.NewPgRepository(pool),
				availability: availability.NewPgRepository(pool),
				records:      records.NewPgRepository(pool),
				e:            e,
			}
			return s.run(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.doctors, "doctors", 10, "Number of doctors")
	cmd.Flags().IntVar(&opts.patients, "patients", 200, "Number of patients")
	cmd.Flags().IntVar(&opts.startMinute, "day-start", 9*60, "Working day start, minutes after midnight")
	cmd.Flags().IntVar(&opts.endMinute, "day-end", 17*60, "Working day end, minutes after midnight")
	cmd.Flags().IntVar(&opts.assignPerDoc, "assign", 5, "Patients explicitly assigned to each doctor")
	return cmd
}

type seeder struct {
	actors       *identity.PgRepository
	availability *availability.PgRepository
	records      *records.PgRepository
	e            *env
}

func (s *seeder) run(cmd *cobra.Command, opts seedOptions) error {
	ctx := cmd.Context()
	gofakeit.Seed(time.Now().UnixNano())

	admin, err := s.actor(ctx, access.RoleAdmin, "Clinic Admin")
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	doctors := make([]uuid.UUID, 0, opts.doctors)
	for i := 0; i < opts.doctors; i++ {
		doc, err := s.actor(ctx, access.RoleDoctor, "Dr. "+gofakeit.Name())
		if err != nil {
			return fmt.Errorf("seed doctor: %w", err)
		}
		for wd := time.Monday; wd <= time.Friday; wd++ {
			w := &availability.Window{
				ID:          uuid.New(),
				DoctorID:    doc.ID,
				Weekday:     wd,
				StartMinute: opts.startMinute,
				EndMinute:   opts.endMinute,
			}
			if err := w.Validate(); err != nil {
				return err
			}
			if err := s.availability.CreateWindow(ctx, w); err != nil {
				return fmt.Errorf("seed window: %w", err)
			}
		}
		doctors = append(doctors, doc.ID)
	}
	s.e.log.Info().Int("count", len(doctors)).Msg("doctors seeded")

	patients := make([]uuid.UUID, 0, opts.patients)
	for i := 0; i < opts.patients; i++ {
		p, err := s.actor(ctx, access.RolePatient, gofakeit.Name())
		if err != nil {
			return fmt.Errorf("seed patient: %w", err)
		}
		patients = append(patients, p.ID)
		if (i+1)%100 == 0 {
			s.e.log.Info().Int("seeded", i+1).Int("total", opts.patients).Msg("patients seeded")
		}
	}

	if len(patients) > 0 {
		for _, doc := range doctors {
			for i := 0; i < opts.assignPerDoc; i++ {
				a := &records.Assignment{
					DoctorID:   doc,
					PatientID:  patients[gofakeit.Number(0, len(patients)-1)],
					AssignedBy: admin.ID,
				}
				if err := s.records.SaveAssignment(ctx, a); err != nil {
					return fmt.Errorf("seed assignment: %w", err)
				}
			}
		}
	}

	token, err := issue(s.e, admin.Actor, 24*time.Hour)
	if err != nil {
		return err
	}
	s.e.log.Info().
		Str("admin_id", admin.ID.String()).
		Int("doctors", len(doctors)).
		Int("patients", len(patients)).
		Msg("seed complete")
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// actor creates an approved actor with a fake email.
func (s *seeder) actor(ctx context.Context, role access.Role, name string) (*identity.Account, error) {
	email := gofakeit.Email()
	acc := &identity.Account{
		Actor: access.Actor{ID: uuid.New(), Role: role},
		Name:  name,
		Email: &email,
	}
	if err := s.actors.CreateActor(ctx, acc); err != nil {
		return nil, err
	}
	return s.actors.ApproveActor(ctx, acc.ID, time.Now())
}
