// Package storage provides JSON-based persistence for event snapshots.
//
// Each platform's last scrape is kept in its own file (snapshot_<platform>.json)
// so runs can be diffed to find new listings and changed prices or dates.
// The default storage location is ~/.local/share/ticketscout/.
package storage
