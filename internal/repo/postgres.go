package repo

import "github.com/jackc/pgx/v5/pgxpool"

// Postgres объединяет репозитории в одну реализацию store.Store.
type Postgres struct {
	*InstanceRepo
	*PipelineRepo
	*EventRepo
	*LearningRepo
	*ScheduleRepo
}

// NewPostgres создаёт полный набор репозиториев поверх одного пула.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		InstanceRepo: NewInstanceRepo(pool),
		PipelineRepo: NewPipelineRepo(pool),
		EventRepo:    NewEventRepo(pool),
		LearningRepo: NewLearningRepo(pool),
		ScheduleRepo: NewScheduleRepo(pool),
	}
}
