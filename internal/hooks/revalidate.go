package hooks

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/basket/go-claw/internal/skills/registry"
	"github.com/basket/go-claw/internal/skills/validator"
)

// Revalidator periodically re-runs the validator over every loaded skill,
// for long-lived daemon callers whose skill trees drift on disk. It runs on
// its own schedule, outside any execute call.
type Revalidator struct {
	cron   *cron.Cron
	reg    *registry.Registry
	logger *slog.Logger
}

// NewRevalidator builds a Revalidator that re-validates reg's loaded skills
// on the given standard 5-field cron schedule.
func NewRevalidator(reg *registry.Registry, schedule string, logger *slog.Logger) (*Revalidator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	r := &Revalidator{cron: c, reg: reg, logger: logger}
	if _, err := c.AddFunc(schedule, r.revalidateAll); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule. Stop must be called to release its goroutine.
func (r *Revalidator) Start() { r.cron.Start() }

// Stop cancels the schedule and waits for any in-flight run to finish.
func (r *Revalidator) Stop() { <-r.cron.Stop().Done() }

func (r *Revalidator) revalidateAll() {
	for _, d := range r.reg.List() {
		skill, ok := r.reg.Get(d.ID)
		if !ok {
			continue
		}
		if result, err := validator.ValidateSkillPath(skill.Root); err != nil {
			r.logger.Warn("periodic revalidation failed", "skill", d.ID, "error", err)
		} else if len(result.Warnings) > 0 {
			r.logger.Info("periodic revalidation warnings", "skill", d.ID, "warnings", result.Warnings)
		}
	}
}
