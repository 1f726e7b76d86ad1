package track

import "errors"

// Dense Jonker-Volgenant solver for the linear assignment problem. The
// tracker's association step is a minimum-cost bipartite matching between
// predicted tracks and fresh detections; neither gonum nor the rest of the
// stack ships a LAP solver, so it lives here.

const largeCost = 1e6

// solveAssignment matches rows (tracks) to columns (detections) of a
// rectangular cost matrix. Returns, per row, the assigned column or -1.
// The matrix is padded to square with prohibitive cost, so padding
// assignments never displace a real pairing.
func solveAssignment(cost [][]float64, rows, cols int) ([]int, error) {
	if rows == 0 || cols == 0 {
		out := make([]int, rows)
		for i := range out {
			out[i] = -1
		}
		return out, nil
	}

	n := rows
	if cols > n {
		n = cols
	}
	square := make([][]float64, n)
	for i := range square {
		square[i] = make([]float64, n)
		for j := range square[i] {
			if i < rows && j < cols {
				square[i][j] = cost[i][j]
			} else {
				square[i][j] = largeCost
			}
		}
	}

	rowSol := make([]int, n)
	colSol := make([]int, n)
	if err := lapjv(n, square, rowSol, colSol); err != nil {
		return nil, err
	}

	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		if rowSol[i] >= cols {
			out[i] = -1
		} else {
			out[i] = rowSol[i]
		}
	}
	return out, nil
}

// lapjv solves the n x n dense assignment problem: column reduction, two
// rounds of augmenting row reduction, then shortest-path augmentation for
// whatever rows remain free.
func lapjv(n int, cost [][]float64, rowSol, colSol []int) error {
	freeRows := make([]int, n)
	colPrice := make([]float64, n)

	free := reduceColumns(n, cost, freeRows, rowSol, colSol, colPrice)
	for round := 0; free > 0 && round < 2; round++ {
		free = reduceRowsAugmenting(n, cost, free, freeRows, rowSol, colSol, colPrice)
	}
	if free > 0 {
		return augment(n, cost, free, freeRows, rowSol, colSol, colPrice)
	}
	return nil
}

// reduceColumns assigns each column to its cheapest row and transfers
// reduction to rows that won a unique column. Returns the number of rows
// left unassigned.
func reduceColumns(n int, cost [][]float64, freeRows, rowSol, colSol []int, colPrice []float64) int {
	unique := make([]bool, n)
	for i := 0; i < n; i++ {
		rowSol[i] = -1
		colPrice[i] = largeCost
		colSol[i] = 0
		unique[i] = true
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c := cost[i][j]; c < colPrice[j] {
				colPrice[j] = c
				colSol[j] = i
			}
		}
	}

	for j := n - 1; j >= 0; j-- {
		i := colSol[j]
		if rowSol[i] < 0 {
			rowSol[i] = j
		} else {
			unique[i] = false
			colSol[j] = -1
		}
	}

	free := 0
	for i := 0; i < n; i++ {
		switch {
		case rowSol[i] < 0:
			freeRows[free] = i
			free++
		case unique[i]:
			j := rowSol[i]
			min := largeCost * 2.0
			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}
				if c := cost[i][j2] - colPrice[j2]; c < min {
					min = c
				}
			}
			colPrice[j] -= min
		}
	}
	return free
}

// reduceRowsAugmenting runs the augmenting row reduction pass over the
// currently free rows, alternating assignments where it lowers the dual
// prices. Returns the number of rows still free afterwards.
func reduceRowsAugmenting(n int, cost [][]float64, free int, freeRows, rowSol, colSol []int, colPrice []float64) int {
	current := 0
	newFree := 0
	steps := 0

	for current < free {
		steps++
		row := freeRows[current]
		current++

		// Find the two cheapest reduced-cost columns for this row.
		best := 0
		bestCost := cost[row][0] - colPrice[0]
		second := -1
		secondCost := largeCost * 2.0
		for j := 1; j < n; j++ {
			c := cost[row][j] - colPrice[j]
			if c < secondCost {
				if c >= bestCost {
					secondCost = c
					second = j
				} else {
					secondCost = bestCost
					bestCost = c
					second = best
					best = j
				}
			}
		}

		displaced := colSol[best]
		lowered := colPrice[best]-(secondCost-bestCost) < colPrice[best]

		if steps < current*n {
			if lowered {
				colPrice[best] -= secondCost - bestCost
			} else if displaced >= 0 && second >= 0 {
				best = second
				displaced = colSol[second]
			}
			if displaced >= 0 {
				if lowered {
					current--
					freeRows[current] = displaced
				} else {
					freeRows[newFree] = displaced
					newFree++
				}
			}
		} else if displaced >= 0 {
			freeRows[newFree] = displaced
			newFree++
		}

		rowSol[row] = best
		colSol[best] = row
	}
	return newFree
}

// augment resolves each remaining free row via a modified Dijkstra
// shortest augmenting path, then flips the path.
func augment(n int, cost [][]float64, free int, freeRows, rowSol, colSol []int, colPrice []float64) error {
	pred := make([]int, n)

	for _, row := range freeRows[:free] {
		endCol := shortestPath(n, cost, row, colSol, colPrice, pred)
		if endCol < 0 || endCol >= n {
			return errors.New("assignment augmentation failed: no augmenting path")
		}

		i := -1
		for steps := 0; i != row; steps++ {
			if steps >= n {
				return errors.New("assignment augmentation failed: path cycle")
			}
			i = pred[endCol]
			colSol[endCol] = i
			endCol, rowSol[i] = rowSol[i], endCol
		}
	}
	return nil
}

// shortestPath finds the nearest unassigned column reachable from startRow
// in the reduced-cost graph, updating column prices along the way.
func shortestPath(n int, cost [][]float64, startRow int, colSol []int, colPrice []float64, pred []int) int {
	cols := make([]int, n)
	dist := make([]float64, n)
	for j := 0; j < n; j++ {
		cols[j] = j
		pred[j] = startRow
		dist[j] = cost[startRow][j] - colPrice[j]
	}

	lo, hi := 0, 0
	ready := 0
	final := -1

	for final == -1 {
		if lo == hi {
			ready = lo
			hi = selectMinColumns(n, lo, dist, cols)
			for k := lo; k < hi; k++ {
				if j := cols[k]; colSol[j] < 0 {
					final = j
				}
			}
		}
		if final == -1 {
			final = scanColumns(n, cost, &lo, &hi, dist, cols, pred, colSol, colPrice)
		}
	}

	min := dist[cols[lo]]
	for k := 0; k < ready; k++ {
		j := cols[k]
		colPrice[j] += dist[j] - min
	}
	return final
}

// selectMinColumns moves every column tied for minimum distance to the
// front of the scan list and returns the new scan boundary.
func selectMinColumns(n, lo int, dist []float64, cols []int) int {
	hi := lo + 1
	min := dist[cols[lo]]
	for k := hi; k < n; k++ {
		j := cols[k]
		if dist[j] <= min {
			if dist[j] < min {
				hi = lo
				min = dist[j]
			}
			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}
	return hi
}

// scanColumns relaxes the remaining columns through the rows owning the
// scan-list columns. Returns an unassigned column the moment one becomes
// reachable at minimum distance, else -1 when the scan list empties.
func scanColumns(n int, cost [][]float64, lo, hi *int, dist []float64, cols, pred, colSol []int, colPrice []float64) int {
	for *lo != *hi {
		j := cols[*lo]
		*lo++
		i := colSol[j]
		min := dist[j]
		h := cost[i][j] - colPrice[j] - min

		for k := *hi; k < n; k++ {
			j = cols[k]
			reduced := cost[i][j] - colPrice[j] - h
			if reduced < dist[j] {
				dist[j] = reduced
				pred[j] = i
				if reduced == min {
					if colSol[j] < 0 {
						return j
					}
					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}
	return -1
}
