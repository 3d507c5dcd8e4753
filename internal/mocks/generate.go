// Package mocks provides mock implementations of the core ports for paper-digest tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().ClaimNext(gomock.Any()).Return(job, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/paper-digest/internal/core JobRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/paper-digest/internal/core ReaperRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/paper-digest/internal/core CacheRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=extractor_mock.go github.com/target/paper-digest/internal/core Extractor
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_client_mock.go github.com/target/paper-digest/internal/core ModelClient
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=summarizer_mock.go github.com/target/paper-digest/internal/core Summarizer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_event_publisher_mock.go github.com/target/paper-digest/internal/core JobEventPublisher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=digest_cache_mock.go github.com/target/paper-digest/internal/core DigestCache
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_sink_mock.go github.com/target/paper-digest/internal/core JobSink
