// Package testutil provides test doubles and fixtures shared by the data-plane
// packages.
//
// MockUploader stands in for a transport adapter. Results are scripted per
// call and every call is logged for later assertions:
//
//	up := testutil.NewMockUploader()
//	up.Script(testutil.ErrMockConnection, nil) // fail once, then succeed
//	...
//	testutil.WaitForCalls(t, up, 2, time.Second)
//
// NewBatch builds a sealed gzip NDJSON batch from literal records, and
// TestRecords holds representative vitals, waveform and status lines.
package testutil
