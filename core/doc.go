// Package core contains the canonical webhook contracts shared by every other
// package: the normalized request value, the extension storage contract, the
// error taxonomy, configuration and logging helpers. Core must not depend on
// transport or storage adapters.
package core
