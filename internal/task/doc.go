// Package task runs background work on a bounded in-memory queue served by a
// fixed number of workers. Generations that need enhancement are handed to
// it as EnhancementTask values so that ffmpeg work never blocks a request.
//
// Work is not persisted here; the generation record is the durable state and
// anything interrupted by a restart is closed out by generation.Service.Recover.
package task
