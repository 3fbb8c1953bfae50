package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

var seedTitles = []string{
	"Complete project documentation",
	"Review pull requests",
	"Update API endpoints",
	"Fix production bugs",
	"Implement new feature",
	"Write unit tests",
	"Deploy to staging",
	"Database optimization",
	"Code review session",
	"Team meeting preparation",
	"Refactor legacy code",
	"Security audit",
	"Performance testing",
	"Update dependencies",
	"Create user documentation",
}

var seedDescriptions = []string{
	"High priority task that needs immediate attention",
	"Regular maintenance and cleanup work",
	"Research and implement best practices",
	"Collaborate with team members on this initiative",
	"Update documentation and add examples",
	"Performance improvements and optimization",
	"Bug fixes and error handling",
	"Feature enhancement based on user feedback",
	"Standard task requiring completion",
	"Critical issue affecting production",
	"Minor improvements to existing functionality",
	"Scheduled maintenance window required",
}

var seedStatuses = []model.TaskStatus{model.TaskPending, model.TaskInProgress, model.TaskCompleted}

// SeedTasks creates n sample tasks for the user registered under email,
// with creation times spread over the last 30 days.
func SeedTasks(ctx context.Context, users UserStore, tasks TaskStore, email string, n int, rng *rand.Rand) (int, error) {
	const op = "service.SeedTasks"

	if n <= 0 {
		return 0, validationError("count must be positive")
	}
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, notFoundError(fmt.Sprintf("no user with email %q", repository.NormalizeEmail(email)))
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	for i := 1; i <= n; i++ {
		age := time.Duration(rng.IntN(30*24*60)) * time.Minute
		desc := seedDescriptions[rng.IntN(len(seedDescriptions))]
		t := &model.Task{
			Title:       fmt.Sprintf("%s #%d", seedTitles[rng.IntN(len(seedTitles))], i),
			Description: &desc,
			Status:      seedStatuses[rng.IntN(len(seedStatuses))],
			UserID:      user.ID,
			CreatedAt:   now.Add(-age),
		}
		if err := tasks.Create(ctx, t); err != nil {
			return i - 1, fmt.Errorf("%s: %w", op, err)
		}
	}
	return n, nil
}
