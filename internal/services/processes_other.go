//go:build !(windows && amd64)

package services

func enrichPlatform(processes []ProcessWithScore) []ProcessWithScore {
	return processes
}
