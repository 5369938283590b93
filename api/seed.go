/*
seed.go - Demo data loader

PURPOSE:
  Populates an empty database with a small, deterministic tuition-center
  roster: a couple of teachers, their groups, enrolled students with a
  spread of balances (full credit, partial credit, none). Useful for
  local development and manual testing of the generation flow.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bilim/tuition-engine/billing"
)

type seedStudent struct {
	name    string
	phone   string
	balance string
	group   int // index into seed groups
}

// SeedDemoData loads the demo roster. Safe to call only on a fresh database;
// repeated calls create duplicate rows.
// POST /api/seed
func (h *Handler) SeedDemoData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	teachers := []billing.Teacher{
		{ID: billing.NewTeacherID(), FullName: "Dilnoza Karimova", Phone: "+998901234567", CreatedAt: h.Clock.Now()},
		{ID: billing.NewTeacherID(), FullName: "Anvar Tursunov", Phone: "+998912345678", CreatedAt: h.Clock.Now()},
	}
	for _, t := range teachers {
		if err := h.Store.SaveTeacher(ctx, t); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed teachers", err)
			return
		}
	}

	groups := []billing.Group{
		{ID: billing.NewGroupID(), Name: "English beginners", TeacherID: teachers[0].ID,
			MonthlyFee: billing.MustMoney("150000"), Time: "10:00-11:30", CreatedAt: h.Clock.Now()},
		{ID: billing.NewGroupID(), Name: "Math olympiad", TeacherID: teachers[1].ID,
			MonthlyFee: billing.MustMoney("200000"), Time: "18:00-19:30", CreatedAt: h.Clock.Now()},
	}
	for _, g := range groups {
		if err := h.Store.SaveGroup(ctx, g); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed groups", err)
			return
		}
	}

	students := []seedStudent{
		{name: "Aziza Rahimova", phone: "+998933334455", balance: "200000", group: 0},
		{name: "Bobur Aliyev", phone: "+998935556677", balance: "60000", group: 0},
		{name: "Kamola Yusupova", phone: "+998937778899", balance: "0", group: 1},
		{name: "Sardor Ismoilov", phone: "+998939990011", balance: "250000", group: 1},
	}
	if err := h.seedStudents(ctx, students, groups); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed students", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"teachers": len(teachers),
		"groups":   len(groups),
		"students": len(students),
	})
}

func (h *Handler) seedStudents(ctx context.Context, students []seedStudent, groups []billing.Group) error {
	for _, s := range students {
		st := billing.Student{
			ID:        billing.NewStudentID(),
			FullName:  s.name,
			Phone:     s.phone,
			Balance:   billing.MustMoney(s.balance),
			CreatedAt: h.Clock.Now(),
		}
		if err := h.Store.SaveStudent(ctx, st); err != nil {
			return fmt.Errorf("saving student %s: %w", s.name, err)
		}
		e := billing.Enrollment{
			ID:        billing.NewEnrollmentID(),
			GroupID:   groups[s.group].ID,
			StudentID: st.ID,
			CreatedAt: h.Clock.Now(),
		}
		if err := h.Store.SaveEnrollment(ctx, e); err != nil {
			return fmt.Errorf("enrolling student %s: %w", s.name, err)
		}
	}
	return nil
}
