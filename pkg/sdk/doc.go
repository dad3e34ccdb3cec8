// Package nqdecode decodes Natural Questions model outputs in-process.
//
// A Client turns raw per-window logits into one long answer and one short
// answer per document and renders them as a submission. Raw results can be
// kept in Valkey, Redis or a local bbolt file and are looked up for every
// window the caller does not supply.
//
//	client, _ := nqdecode.New(ctx, nqdecode.WithBolt("/var/lib/nqdecode/results.db"))
//	defer client.Close()
//
//	docs, _ := client.ReadDocuments(evalFile)
//	windows, _ := client.ReadFeatures(featuresFile)
//	results, _ := client.ReadResults(resultsFile)
//
//	preds, _ := client.Predict(ctx, nqdecode.Input{
//	    Documents: docs,
//	    Windows:   windows,
//	    Results:   results,
//	})
//	_ = client.WriteSubmission(out, client.Submission(preds))
package nqdecode
