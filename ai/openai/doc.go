// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package openai provides the embedding provider over OpenAI-compatible APIs.
//
// This package implements the ai.AIProvider interface using the langchaingo
// library. Requests go to the /embeddings endpoint of the configured host
// with the configured model (text-embedding-3-small by default).
//
// # Usage
//
//	config := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "cloud infrastructure")
//
// Every failure from the service is wrapped with core.ErrProvider. A
// response with the wrong number of components is core.ErrDimensionMismatch.
package openai
