// Package mysql persists run records. It offers a JSONL-file backed
// repository for single-node deployments and a MySQL backed repository for
// shared environments, both behind the RunRepository interface.
package mysql
