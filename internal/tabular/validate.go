package tabular

import "slices"

// Validate compares a file's columns with the dataset's existing columns.
// A dataset with no columns yet accepts any file.
func Validate(dataset string, existing, file []string) error {
	if len(existing) == 0 {
		return nil
	}

	var missing, extra []string
	for _, c := range existing {
		if !slices.Contains(file, c) {
			missing = append(missing, c)
		}
	}
	for _, c := range file {
		if !slices.Contains(existing, c) {
			extra = append(extra, c)
		}
	}

	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return &ValidationError{
		Dataset:  dataset,
		Missing:  sorted(missing),
		Extra:    sorted(extra),
		Expected: sorted(existing),
	}
}
