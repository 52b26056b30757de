package collision

import (
	"fmt"
)

// NoDedup marks a job whose results are final as-is.
const NoDedup = -1

// IndexRange is a half-open range [Start, End) into the population snapshot.
type IndexRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices in the range.
func (r IndexRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether i falls in the range.
func (r IndexRange) Contains(i int) bool { return i >= r.Start && i < r.End }

func (r IndexRange) overlaps(o IndexRange) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r IndexRange) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// BatchJob is one accelerator dispatch. A self job tests all pairs within
// Primary. A cross job dispatches Primary and Cross together and keeps only the
// pairs spanning both; DedupAgainst names the self job that covered Primary.
type BatchJob struct {
	Primary      IndexRange `json:"primary"`
	Cross        IndexRange `json:"cross"`
	DedupAgainst int        `json:"dedupAgainst"`
}

// IsCross reports whether the job compares two disjoint ranges.
func (j BatchJob) IsCross() bool { return j.Cross.Len() > 0 }

// Len returns the number of entities the job dispatches.
func (j BatchJob) Len() int { return j.Primary.Len() + j.Cross.Len() }

func (j BatchJob) String() string {
	if j.IsCross() {
		return fmt.Sprintf("%s x %s", j.Primary, j.Cross)
	}
	return j.Primary.String()
}

// Kind returns "self" or "cross".
func (j BatchJob) Kind() string {
	if j.IsCross() {
		return "cross"
	}
	return "self"
}

// PlanJobs partitions a population of n entities into jobs of at most
// maxBatchSize entities per range. Each self job is followed by the cross jobs
// that pair its range with every later range, so a self job always completes
// before the cross jobs that reference it. A cross job dispatches up to twice
// maxBatchSize entities; see RangeSize.
func PlanJobs(n, maxBatchSize int) ([]BatchJob, error) {
	if maxBatchSize < 1 {
		return nil, &ConfigError{Field: "max_batch_size", Err: ErrInvalidBatchSize}
	}
	if n <= 0 {
		return nil, nil
	}

	strides := (n + maxBatchSize - 1) / maxBatchSize
	jobs := make([]BatchJob, 0, strides*(strides+1)/2)

	for i := 0; i < n; i += maxBatchSize {
		primary := IndexRange{Start: i, End: min(i+maxBatchSize, n)}
		selfIndex := len(jobs)
		jobs = append(jobs, BatchJob{Primary: primary, DedupAgainst: NoDedup})

		for j := primary.End; j < n; j += maxBatchSize {
			jobs = append(jobs, BatchJob{
				Primary:      primary,
				Cross:        IndexRange{Start: j, End: min(j+maxBatchSize, n)},
				DedupAgainst: selfIndex,
			})
		}
	}
	return jobs, nil
}

// RangeSize returns the range length to plan n entities with when no dispatch
// may hold more than maxBatchSize entities. A population that fits is a single
// self job. Otherwise ranges are halved, since a cross job dispatches two ranges
// together. A limit of 1 still plans ranges of 1, the smallest dispatch that
// can hold a pair being two entities.
func RangeSize(n, maxBatchSize int) int {
	if n <= maxBatchSize || maxBatchSize < 2 {
		return maxBatchSize
	}
	return maxBatchSize / 2
}

// ValidateJobs checks the planning invariants for a population of n entities.
func ValidateJobs(jobs []BatchJob, n int) error {
	for k, job := range jobs {
		if job.Primary.Start < 0 || job.Primary.Start >= job.Primary.End || job.Primary.End > n {
			return fmt.Errorf("job %d: primary range %s invalid for population %d", k, job.Primary, n)
		}
		if !job.IsCross() {
			if job.DedupAgainst != NoDedup {
				return fmt.Errorf("job %d: self job must not dedup against job %d", k, job.DedupAgainst)
			}
			continue
		}
		if job.Cross.Start < 0 || job.Cross.End > n {
			return fmt.Errorf("job %d: cross range %s invalid for population %d", k, job.Cross, n)
		}
		if job.Primary.overlaps(job.Cross) {
			return fmt.Errorf("job %d: cross range %s overlaps primary %s", k, job.Cross, job.Primary)
		}
		d := job.DedupAgainst
		if d < 0 || d >= k {
			return fmt.Errorf("job %d: %w (dedup against %d)", k, ErrDedupOrder, d)
		}
		if jobs[d].IsCross() || jobs[d].Primary != job.Primary {
			return fmt.Errorf("job %d: dedup target %d is not the self job for %s", k, d, job.Primary)
		}
	}
	return nil
}
