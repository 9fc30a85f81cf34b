/*
Package dsl builds command definitions in Go instead of metadata documents.

It is useful for embedding agents in tests or tools that generate pipelines.

Example usage:

	defs, err := dsl.New().
		Command("CMD-AppDeploy").
		Stage("WriteApp").Leader().
		Infra("Fetch", "fetch_bundle").Timeout(300).Retries(2).
		Hook("PreDeploy", "appdeploy/pre").
		Stage("Restart").
		Sh("Bounce", "systemctl restart app").
		Build()
*/
package dsl
