package main

// Import all engines to register their prototypes.
import (
	_ "github.com/metisearch/metis/pkg/engines/duckduckgo"
	_ "github.com/metisearch/metis/pkg/engines/github"
	_ "github.com/metisearch/metis/pkg/engines/wikipedia"
)
