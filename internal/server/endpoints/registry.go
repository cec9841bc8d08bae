package endpoints

import (
	"github.com/vision-ocr/vppe/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health
		&HealthEndpoint{},

		// Jobs
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&DeleteJobEndpoint{},
		&JobEventsEndpoint{},
		&JobResultEndpoint{},
		&RetryJobEndpoint{},
	}
}
