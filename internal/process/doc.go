// Package process runs external encoders such as ffmpeg as supervised
// subprocesses.
//
// A Process is a single run: cancelling its context sends SIGINT and kills
// the process once the grace period expires. Output lines, split on both
// newlines and carriage returns, are logged through an optional LogParser
// and handed to line handlers.
//
// A Pool runs named one-shot jobs in the background and keeps their JobInfo
// (state, exit code, progress) for the export job listing:
//
//	pool := process.NewPool(&process.PoolOptions{
//		Progress: ffmpeg.ParseProgress,
//	})
//	defer pool.StopAll()
//	_ = pool.Start("cam0-_3", "ffmpeg -hide_banner -framerate 10 -i frames/%06d.png out.mp4")
//	info, err := pool.Wait(ctx, "cam0-_3")
package process
