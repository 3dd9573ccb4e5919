// Package azure provides an embedding service backed by Azure OpenAI
// deployments, using the go-openai client.
//
// Config.EmbeddingModel names the deployment, Config.EmbeddingHost is the
// resource endpoint (https://<resource>.openai.azure.com) and Config.APIVersion
// the service API version.
package azure
